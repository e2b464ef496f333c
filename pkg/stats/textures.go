package stats

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
	"github.com/neurospin/gofreesurfer/pkg/imgio"
)

// TexturesOptions parametrizes the aggregation of per-subject surface
// textures (sulc, curv, ...) into population tables.
type TexturesOptions struct {
	// FSDir is the FreeSurfer subjects directory.
	FSDir string
	// Pattern is a glob, relative to FSDir, locating the texture files,
	// e.g. "*/surf/lh.sulc". The basename of the pattern names the
	// texture; the subject is the first path element of each match.
	Pattern string
	OutDir  string
	// IcoOrder is the icosahedron tessellation every subject texture is
	// resampled onto before aggregation.
	IcoOrder int
	// KeepIndividualTextures leaves the per-subject resampled '.mgz'
	// files on disk.
	KeepIndividualTextures bool
	// SaveMode selects the table format: 'csv', 'json' or 'all'.
	SaveMode string
}

// Textures2Table resamples every matched subject texture onto a common
// icosahedron and stores the values in one table per texture under
// <outdir>/textures. It returns the generated table files.
func Textures2Table(ctx context.Context, cfg conversions.Config, opts TexturesOptions) ([]string, error) {
	for _, path := range []string{opts.FSDir, opts.OutDir} {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("'%s' is not a valid directory", path)
		}
	}
	if opts.SaveMode == "" {
		opts.SaveMode = "csv"
	}
	if opts.SaveMode != "csv" && opts.SaveMode != "json" && opts.SaveMode != "all" {
		return nil, fmt.Errorf(
			"'%s' is not a valid save mode, expected 'csv', 'json' or 'all'", opts.SaveMode)
	}

	textures, err := filepath.Glob(filepath.Join(opts.FSDir, opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad texture pattern '%s': %w", opts.Pattern, err)
	}

	basename := filepath.Base(opts.Pattern)
	hemi := strings.SplitN(basename, ".", 2)[0]
	fsoutdir := filepath.Join(opts.OutDir, "textures")
	surfacesDir := filepath.Join(fsoutdir, basename)
	if err := os.MkdirAll(surfacesDir, 0o755); err != nil {
		return nil, err
	}

	texturesMap := map[string][]float64{}
	for _, textureFile := range textures {
		rel, err := filepath.Rel(opts.FSDir, textureFile)
		if err != nil {
			return nil, err
		}
		sid := strings.Split(rel, string(os.PathSeparator))[0]
		if _, dup := texturesMap[sid]; dup {
			return nil, fmt.Errorf(
				"subject '%s' already treated, check the texture pattern", sid)
		}

		resampled := filepath.Join(surfacesDir,
			fmt.Sprintf("%s_%s.mgz", sid, basename))
		_, err = conversions.MRISurf2Surf(ctx, cfg, conversions.Surf2SurfOptions{
			Hemi:              hemi,
			InputSurfaceFile:  textureFile,
			OutputSurfaceFile: resampled,
			IcoOrder:          opts.IcoOrder,
			FSDir:             opts.FSDir,
			SubjectID:         sid,
		})
		if err != nil {
			return nil, err
		}

		volume, err := imgio.ReadMGH(resampled)
		if err != nil {
			return nil, err
		}
		// A texture is expected to be a flat per-vertex profile.
		if volume.Height != 1 || volume.Depth != 1 {
			return nil, fmt.Errorf(
				"expected profile texture of shape (*, 1, 1) in '%s'", resampled)
		}
		texturesMap[sid] = volume.Values
	}

	if !opts.KeepIndividualTextures {
		if err := os.RemoveAll(surfacesDir); err != nil {
			return nil, err
		}
	}

	subjects := make([]string, 0, len(texturesMap))
	for sid := range texturesMap {
		subjects = append(subjects, sid)
	}
	sort.Strings(subjects)

	var textureFiles []string
	stem := filepath.Join(fsoutdir, fmt.Sprintf("%s.%d", basename, opts.IcoOrder))
	if opts.SaveMode == "csv" || opts.SaveMode == "all" {
		csvFile := stem + ".csv"
		if err := writeTexturesCSV(csvFile, subjects, texturesMap); err != nil {
			return nil, err
		}
		textureFiles = append(textureFiles, csvFile)
	}
	if opts.SaveMode == "json" || opts.SaveMode == "all" {
		jsonFile := stem + ".json"
		if err := writeTexturesJSON(jsonFile, texturesMap); err != nil {
			return nil, err
		}
		textureFiles = append(textureFiles, jsonFile)
	}
	return textureFiles, nil
}

func writeTexturesCSV(path string, subjects []string, texturesMap map[string][]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	for _, sid := range subjects {
		row := make([]string, 0, len(texturesMap[sid])+1)
		row = append(row, sid)
		for _, value := range texturesMap[sid] {
			row = append(row, fmt.Sprintf("%.4f", value))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTexturesJSON(path string, texturesMap map[string][]float64) error {
	data, err := json.MarshalIndent(texturesMap, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
