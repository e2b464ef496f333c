package conversions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ConformedToNative computes, for every matched subject mri directory, the
// registration between the conformed space (orig.mgz) and the native
// anatomical space (rawavg.mgz) with tkregister2. The transformation is
// written as convert/register.native.dat under each subject output folder.
// It returns the transformation files.
func ConformedToNative(ctx context.Context, cfg Config, fsdir, pattern, outdir string) ([]string, error) {
	if err := checkDir(fsdir); err != nil {
		return nil, err
	}
	if err := checkDir(outdir); err != nil {
		return nil, err
	}

	mriDirs, err := filepath.Glob(filepath.Join(fsdir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad mri pattern '%s': %w", pattern, err)
	}

	var trfFiles []string
	for _, mriDir := range mriDirs {
		parts := strings.Split(strings.TrimRight(mriDir, string(os.PathSeparator)),
			string(os.PathSeparator))
		if len(parts) < 2 {
			return nil, fmt.Errorf("can't locate the subject of folder '%s'", mriDir)
		}
		subjectID := parts[len(parts)-2]

		convertDir := filepath.Join(outdir, subjectID, "convert")
		if err := os.MkdirAll(convertDir, 0o755); err != nil {
			return nil, err
		}

		rawFile := filepath.Join(mriDir, "rawavg.mgz")
		origFile := filepath.Join(mriDir, "orig.mgz")
		for _, path := range []string{rawFile, origFile} {
			if err := checkFile(path); err != nil {
				return nil, fmt.Errorf("in folder '%s': %w", mriDir, err)
			}
		}

		trfFile := filepath.Join(convertDir, "register.native.dat")
		cmd := []string{
			"tkregister2",
			"--mov", rawFile,
			"--targ", origFile,
			"--reg", trfFile,
			"--noedit",
			"--regheader",
		}
		if _, err := cfg.Run(ctx, cmd); err != nil {
			return nil, err
		}
		trfFiles = append(trfFiles, trfFile)
	}
	return trfFiles, nil
}

// TkregisterTranslation computes the translation between the scanner RAS
// space and the tkregister RAS space of a '.mgz' volume, by differencing
// the vox2ras and vox2ras-tkr affines reported by mri_info.
func TkregisterTranslation(ctx context.Context, cfg Config, mgzFile string) (*mat.Dense, error) {
	if err := checkFile(mgzFile); err != nil {
		return nil, fmt.Errorf("'%s' is not a valid '.mgz' file", mgzFile)
	}

	affines := map[bool]*mat.Dense{}
	for _, tkregister := range []bool{true, false} {
		flag := "--vox2ras"
		if tkregister {
			flag = "--vox2ras-tkr"
		}
		wrapper, err := cfg.Run(ctx, []string{"mri_info", flag, mgzFile})
		if err != nil {
			return nil, err
		}
		affine, err := parseAffine(string(wrapper.Stdout))
		if err != nil {
			return nil, fmt.Errorf("parsing '%s' output for '%s': %w", flag, mgzFile, err)
		}
		affines[tkregister] = affine
	}

	// translation = I + (vox2ras - vox2ras_tkr)
	translation := mat.NewDense(4, 4, nil)
	translation.Sub(affines[false], affines[true])
	for i := 0; i < 4; i++ {
		translation.Set(i, i, translation.At(i, i)+1)
	}
	return translation, nil
}

// parseAffine reads the 4x4 row-major matrix mri_info prints.
func parseAffine(output string) (*mat.Dense, error) {
	values := make([]float64, 0, 16)
	for _, field := range strings.Fields(output) {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected token '%s' in affine output", field)
		}
		values = append(values, value)
	}
	if len(values) != 16 {
		return nil, fmt.Errorf("expected 16 affine coefficients, got %d", len(values))
	}
	return mat.NewDense(4, 4, values), nil
}
