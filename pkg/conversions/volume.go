package conversions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Interpolation methods accepted by mri_convert.
var interpolations = map[string]bool{
	"interpolate": true,
	"weighted":    true,
	"nearest":     true,
	"cubic":       true,
}

// BinarizeOptions parametrizes a label map binarization.
type BinarizeOptions struct {
	InputFile  string
	OutputFile string
	// Match selects labels instead of thresholding.
	Match []int
	// WM matches labels 2 and 41, the aseg cerebral white matter.
	WM         bool
	Ventricles bool
	// Inv inverts the binarization.
	Inv bool
}

// MRIBinarize binarizes a FreeSurfer label map with mri_binarize.
func MRIBinarize(ctx context.Context, cfg Config, opts BinarizeOptions) error {
	if err := checkFile(opts.InputFile); err != nil {
		return err
	}

	cmd := []string{"mri_binarize", "--i", opts.InputFile, "--o", opts.OutputFile}
	if len(opts.Match) > 0 {
		cmd = append(cmd, "--match")
		for _, label := range opts.Match {
			cmd = append(cmd, strconv.Itoa(label))
		}
	}
	if opts.WM {
		cmd = append(cmd, "--wm")
	}
	if opts.Ventricles {
		cmd = append(cmd, "--ventricles")
	}
	if opts.Inv {
		cmd = append(cmd, "--inv")
	}

	_, err := cfg.Run(ctx, cmd)
	return err
}

// ConvertOptions parametrizes the mgz to NIfTI export of a subjects tree.
type ConvertOptions struct {
	// FSDir is the FreeSurfer working directory with all the subjects.
	FSDir string
	// Pattern is a glob, relative to FSDir, locating the volumes to
	// convert. The subject identifier is the first path element of each
	// match.
	Pattern string
	// OutDir is the conversion destination folder.
	OutDir string
	// DestDirName names the per-subject subfolder receiving the
	// converted volumes. Empty writes directly into OutDir.
	DestDirName string
	// Reslice aligns the output on the subject's rawavg.mgz. Resliced
	// outputs carry a '.native' suffix.
	Reslice       bool
	Interpolation string
}

// MRIConvert exports FreeSurfer '.mgz' volumes to NIfTI with mri_convert,
// optionally resliced to the native anatomical space. It returns the
// converted files.
func MRIConvert(ctx context.Context, cfg Config, opts ConvertOptions) ([]string, error) {
	if err := checkDir(opts.FSDir); err != nil {
		return nil, err
	}
	if err := checkDir(opts.OutDir); err != nil {
		return nil, err
	}
	if opts.Interpolation == "" {
		opts.Interpolation = "interpolate"
	}
	if !interpolations[opts.Interpolation] {
		return nil, fmt.Errorf("'%s' is not a valid interpolation method", opts.Interpolation)
	}

	inputs, err := filepath.Glob(filepath.Join(opts.FSDir, opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad volume pattern '%s': %w", opts.Pattern, err)
	}

	var niftiFiles []string
	for _, input := range inputs {
		rel, err := filepath.Rel(opts.FSDir, input)
		if err != nil {
			return nil, err
		}
		subject := strings.Split(rel, string(os.PathSeparator))[0]

		subjOutDir := opts.OutDir
		if opts.DestDirName != "" {
			subjOutDir = filepath.Join(opts.OutDir, subject, opts.DestDirName)
		}
		if err := os.MkdirAll(subjOutDir, 0o755); err != nil {
			return nil, err
		}

		basename := strings.TrimSuffix(filepath.Base(input), ".mgz")
		cmd := []string{"mri_convert", "--resample_type", opts.Interpolation}
		if opts.Reslice {
			reference := filepath.Join(opts.FSDir, subject, "mri", "rawavg.mgz")
			if err := checkFile(reference); err != nil {
				return nil, fmt.Errorf(
					"'%s' does not exist, can't reslice image '%s'", reference, input)
			}
			cmd = append(cmd, "--reslice_like", reference)
			basename += ".native"
		}
		converted := filepath.Join(subjOutDir, basename+".nii.gz")
		cmd = append(cmd, input, converted)

		if _, err := cfg.Run(ctx, cmd); err != nil {
			return nil, err
		}
		niftiFiles = append(niftiFiles, converted)
	}
	return niftiFiles, nil
}

// Vol2SurfOptions parametrizes the projection of a volume onto an
// icosahedron tessellated cortical surface.
type Vol2SurfOptions struct {
	Hemi       string
	VolumeFile string
	// OutTextureFile receives the '.mgz' texture.
	OutTextureFile string
	IcoOrder       int
	// DatFile is the structural to FreeSurfer space affine registration
	// computed by tkregister2.
	DatFile   string
	FSDir     string
	SubjectID string
	// SurfaceName selects the surface to sample, 'white' or 'pial'.
	SurfaceName string
}

// MRIVol2Surf assigns volume values to surface vertices with mri_vol2surf.
func MRIVol2Surf(ctx context.Context, cfg Config, opts Vol2SurfOptions) error {
	if err := checkFile(opts.VolumeFile); err != nil {
		return err
	}
	if err := checkFile(opts.DatFile); err != nil {
		return err
	}
	if err := checkDir(opts.FSDir); err != nil {
		return err
	}
	if err := checkHemisphere(opts.Hemi); err != nil {
		return err
	}
	if opts.SurfaceName == "" {
		opts.SurfaceName = "white"
	}
	if err := checkSurface(opts.SurfaceName); err != nil {
		return err
	}
	if err := checkIcoOrder(opts.IcoOrder); err != nil {
		return err
	}

	cmd := []string{
		"mri_vol2surf",
		"--src", opts.VolumeFile,
		"--out", opts.OutTextureFile,
		"--srcreg", opts.DatFile,
		"--hemi", opts.Hemi,
		"--trgsubject", "ico",
		"--icoorder", strconv.Itoa(opts.IcoOrder),
		"--surf", opts.SurfaceName,
		"--sd", opts.FSDir,
		"--srcsubject", opts.SubjectID,
		"--noreshape",
		"--out_type", "mgz",
	}
	_, err := cfg.Run(ctx, cmd)
	return err
}
