package conversions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Surf2SurfOptions parametrizes a surface texture resampling.
type Surf2SurfOptions struct {
	Hemi             string
	InputSurfaceFile string
	// OutputSurfaceFile is the '.mgz' destination. The extension is
	// appended when missing.
	OutputSurfaceFile string
	IcoOrder          int
	FSDir             string
	SubjectID         string
}

// MRISurf2Surf resamples surface vertex values onto an icosahedron with
// mri_surf2surf and returns the output file path.
func MRISurf2Surf(ctx context.Context, cfg Config, opts Surf2SurfOptions) (string, error) {
	if err := checkFile(opts.InputSurfaceFile); err != nil {
		return "", err
	}
	if err := checkDir(opts.FSDir); err != nil {
		return "", err
	}
	if err := checkHemisphere(opts.Hemi); err != nil {
		return "", err
	}
	if err := checkIcoOrder(opts.IcoOrder); err != nil {
		return "", err
	}

	output := opts.OutputSurfaceFile
	if !strings.HasSuffix(output, ".mgz") {
		output += ".mgz"
	}

	cmd := []string{
		"mri_surf2surf",
		"--hemi", opts.Hemi,
		"--srcsurfval", opts.InputSurfaceFile,
		"--srcsubject", opts.SubjectID,
		"--trgsubject", "ico",
		"--trgicoorder", strconv.Itoa(opts.IcoOrder),
		"--trgsurfval", output,
		"--sd", opts.FSDir,
		"--trg_type", "mgz",
	}
	if _, err := cfg.Run(ctx, cmd); err != nil {
		return "", err
	}
	return output, nil
}

// ResampleOptions parametrizes the icosahedron resampling of cortical
// surfaces across a subjects tree.
type ResampleOptions struct {
	FSDir string
	// Pattern is a glob, relative to FSDir, locating the surfaces to
	// resample, e.g. "*/surf/lh.white". The subject identifier is taken
	// from the grandparent directory of each match.
	Pattern string
	OutDir  string
	// Orders lists the icosahedron orders to generate. Defaults to
	// 4 through 7.
	Orders      []int
	SurfaceName string
}

// ResampleCorticalSurface resamples white or pial surfaces onto icosahedra
// of increasing order and maps the matching aparc annotations. It returns
// the resampled surface files and the annotation files.
func ResampleCorticalSurface(ctx context.Context, cfg Config, opts ResampleOptions) ([]string, []string, error) {
	if err := checkDir(opts.FSDir); err != nil {
		return nil, nil, err
	}
	if err := checkDir(opts.OutDir); err != nil {
		return nil, nil, err
	}
	if opts.SurfaceName == "" {
		opts.SurfaceName = "white"
	}
	if err := checkSurface(opts.SurfaceName); err != nil {
		return nil, nil, err
	}
	if len(opts.Orders) == 0 {
		opts.Orders = []int{4, 5, 6, 7}
	}
	for _, order := range opts.Orders {
		if err := checkIcoOrder(order); err != nil {
			return nil, nil, err
		}
	}

	surfaces, err := filepath.Glob(filepath.Join(opts.FSDir, opts.Pattern))
	if err != nil {
		return nil, nil, fmt.Errorf("bad surface pattern '%s': %w", opts.Pattern, err)
	}

	var resampleFiles []string
	annotSeen := map[string]bool{}
	for _, surf := range surfaces {
		parts := strings.Split(surf, string(os.PathSeparator))
		if len(parts) < 3 {
			return nil, nil, fmt.Errorf("can't locate the subject of surface '%s'", surf)
		}
		subjectID := parts[len(parts)-3]
		hemi := strings.SplitN(filepath.Base(surf), ".", 2)[0]

		convertDir := filepath.Join(opts.OutDir, subjectID, "convert")
		if err := os.MkdirAll(convertDir, 0o755); err != nil {
			return nil, nil, err
		}

		for _, order := range opts.Orders {
			convertFile := filepath.Join(convertDir,
				fmt.Sprintf("%s.%s.%d", hemi, opts.SurfaceName, order))
			resampleFiles = append(resampleFiles, convertFile)
			cmd := []string{
				"mri_surf2surf",
				"--sval-xyz", opts.SurfaceName,
				"--srcsubject", subjectID,
				"--trgsubject", "ico",
				"--trgicoorder", strconv.Itoa(order),
				"--tval", convertFile,
				"--tval-xyz",
				"--hemi", hemi,
				"--sd", opts.FSDir,
			}
			if _, err := cfg.Run(ctx, cmd); err != nil {
				return nil, nil, err
			}

			annotFile := filepath.Join(convertDir,
				fmt.Sprintf("%s.aparc.annot.%d", hemi, order))
			annotSeen[annotFile] = true
			if _, err := os.Stat(annotFile); err == nil {
				continue
			}
			svalAnnot := filepath.Join(opts.FSDir, subjectID, "label",
				hemi+".aparc.annot")
			cmd = []string{
				"mri_surf2surf",
				"--srcsubject", subjectID,
				"--trgsubject", "ico",
				"--trgicoorder", strconv.Itoa(order),
				"--hemi", hemi,
				"--sval-annot", svalAnnot,
				"--tval", annotFile,
				"--sd", opts.FSDir,
			}
			if _, err := cfg.Run(ctx, cmd); err != nil {
				return nil, nil, err
			}
		}
	}

	annotFiles := make([]string, 0, len(annotSeen))
	for file := range annotSeen {
		annotFiles = append(annotFiles, file)
	}
	sort.Strings(resampleFiles)
	sort.Strings(annotFiles)
	return resampleFiles, annotFiles, nil
}
