package conversions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfig builds a Config backed by a stand-in FreeSurfer install whose
// bin directory holds the given stub commands.
func fakeConfig(t *testing.T, commands map[string]string) Config {
	t.Helper()
	t.Setenv("FREESURFER_CONFIGURED", "")

	home := t.TempDir()
	binDir := filepath.Join(home, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, "build-stamp.txt"), []byte("v5.3.0"), 0o644))

	for name, script := range commands {
		require.NoError(t, os.WriteFile(
			filepath.Join(binDir, name),
			[]byte("#!/bin/sh\n"+script+"\n"), 0o755))
	}

	setup := filepath.Join(home, "SetUpFreeSurfer.sh")
	require.NoError(t, os.WriteFile(setup, []byte(fmt.Sprintf(
		"export FREESURFER_HOME=%s\nexport PATH=%s:$PATH\n", home, binDir)), 0o755))

	return Config{FSConfig: setup}
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestMRIBinarize(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	cfg := fakeConfig(t, map[string]string{
		"mri_binarize": "printf '%s\\n' \"$@\" > " + argsFile,
	})

	input := touch(t, filepath.Join(t.TempDir(), "aseg.mgz"))
	err := MRIBinarize(context.Background(), cfg, BinarizeOptions{
		InputFile:  input,
		OutputFile: "/tmp/out.nii.gz",
		Match:      []int{17, 53},
		Inv:        true,
	})
	require.NoError(t, err)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t,
		"--i\n"+input+"\n--o\n/tmp/out.nii.gz\n--match\n17\n53\n--inv\n",
		string(args))
}

func TestMRIBinarizeMissingInput(t *testing.T) {
	cfg := fakeConfig(t, nil)
	err := MRIBinarize(context.Background(), cfg, BinarizeOptions{
		InputFile:  "/missing.mgz",
		OutputFile: "/tmp/out.nii.gz",
	})
	assert.ErrorContains(t, err, "not a valid file")
}

func TestMRIConvertReslicesToNative(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	cfg := fakeConfig(t, map[string]string{
		"mri_convert": "printf '%s\\n' \"$@\" >> " + argsFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	touch(t, filepath.Join(fsdir, "sub01", "mri", "aseg.mgz"))
	rawavg := touch(t, filepath.Join(fsdir, "sub01", "mri", "rawavg.mgz"))

	files, err := MRIConvert(context.Background(), cfg, ConvertOptions{
		FSDir:       fsdir,
		Pattern:     filepath.Join("*", "mri", "aseg.mgz"),
		OutDir:      outdir,
		DestDirName: "convert",
		Reslice:     true,
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t,
		filepath.Join(outdir, "sub01", "convert", "aseg.native.nii.gz"), files[0])

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	got := string(args)
	assert.Contains(t, got, "--resample_type\ninterpolate\n")
	assert.Contains(t, got, "--reslice_like\n"+rawavg+"\n")
}

func TestMRIConvertMissingReference(t *testing.T) {
	cfg := fakeConfig(t, map[string]string{"mri_convert": "exit 0"})

	fsdir := t.TempDir()
	touch(t, filepath.Join(fsdir, "sub01", "mri", "aseg.mgz"))

	_, err := MRIConvert(context.Background(), cfg, ConvertOptions{
		FSDir:   fsdir,
		Pattern: filepath.Join("*", "mri", "aseg.mgz"),
		OutDir:  t.TempDir(),
		Reslice: true,
	})
	assert.ErrorContains(t, err, "can't reslice")
}

func TestMRIConvertRejectsBadInterpolation(t *testing.T) {
	cfg := fakeConfig(t, nil)
	_, err := MRIConvert(context.Background(), cfg, ConvertOptions{
		FSDir:         t.TempDir(),
		OutDir:        t.TempDir(),
		Interpolation: "spline",
	})
	assert.ErrorContains(t, err, "not a valid interpolation method")
}

func TestMRIVol2SurfValidation(t *testing.T) {
	cfg := fakeConfig(t, nil)

	volume := touch(t, filepath.Join(t.TempDir(), "vol.nii.gz"))
	dat := touch(t, filepath.Join(t.TempDir(), "register.native.dat"))
	fsdir := t.TempDir()

	opts := Vol2SurfOptions{
		Hemi:       "xh",
		VolumeFile: volume,
		DatFile:    dat,
		FSDir:      fsdir,
		IcoOrder:   7,
	}
	err := MRIVol2Surf(context.Background(), cfg, opts)
	assert.ErrorContains(t, err, "not a valid hemisphere")

	opts.Hemi = "lh"
	opts.IcoOrder = 8
	err = MRIVol2Surf(context.Background(), cfg, opts)
	assert.ErrorContains(t, err, "not in the 0-7 range")

	opts.IcoOrder = 7
	opts.SurfaceName = "sphere"
	err = MRIVol2Surf(context.Background(), cfg, opts)
	assert.ErrorContains(t, err, "not a valid surface")
}

func TestMRIVol2SurfCommand(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	cfg := fakeConfig(t, map[string]string{
		"mri_vol2surf": "printf '%s\\n' \"$@\" > " + argsFile,
	})

	volume := touch(t, filepath.Join(t.TempDir(), "vol.nii.gz"))
	dat := touch(t, filepath.Join(t.TempDir(), "register.native.dat"))
	fsdir := t.TempDir()

	err := MRIVol2Surf(context.Background(), cfg, Vol2SurfOptions{
		Hemi:           "rh",
		VolumeFile:     volume,
		OutTextureFile: "/tmp/texture.mgz",
		IcoOrder:       5,
		DatFile:        dat,
		FSDir:          fsdir,
		SubjectID:      "sub01",
	})
	require.NoError(t, err)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	got := string(args)
	assert.Contains(t, got, "--trgsubject\nico\n--icoorder\n5\n")
	assert.Contains(t, got, "--surf\nwhite\n")
	assert.Contains(t, got, "--noreshape\n--out_type\nmgz\n")
}

func TestMRISurf2SurfAppendsExtension(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	cfg := fakeConfig(t, map[string]string{
		"mri_surf2surf": "printf '%s\\n' \"$@\" > " + argsFile,
	})

	input := touch(t, filepath.Join(t.TempDir(), "lh.sulc"))
	output, err := MRISurf2Surf(context.Background(), cfg, Surf2SurfOptions{
		Hemi:              "lh",
		InputSurfaceFile:  input,
		OutputSurfaceFile: "/tmp/lh.sulc.ico7",
		IcoOrder:          7,
		FSDir:             t.TempDir(),
		SubjectID:         "sub01",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/lh.sulc.ico7.mgz", output)
}

func TestResampleCorticalSurface(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "calls.txt")
	cfg := fakeConfig(t, map[string]string{
		"mri_surf2surf": "printf '%s\\n' \"$*\" >> " + logFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	touch(t, filepath.Join(fsdir, "sub01", "surf", "lh.white"))

	surfFiles, annotFiles, err := ResampleCorticalSurface(
		context.Background(), cfg, ResampleOptions{
			FSDir:   fsdir,
			Pattern: filepath.Join("*", "surf", "lh.white"),
			OutDir:  outdir,
			Orders:  []int{4, 7},
		})
	require.NoError(t, err)

	convertDir := filepath.Join(outdir, "sub01", "convert")
	assert.Equal(t, []string{
		filepath.Join(convertDir, "lh.white.4"),
		filepath.Join(convertDir, "lh.white.7"),
	}, surfFiles)
	assert.Equal(t, []string{
		filepath.Join(convertDir, "lh.aparc.annot.4"),
		filepath.Join(convertDir, "lh.aparc.annot.7"),
	}, annotFiles)

	calls, err := os.ReadFile(logFile)
	require.NoError(t, err)
	got := string(calls)
	assert.Contains(t, got, "--sval-xyz white")
	assert.Contains(t, got, "--sval-annot "+filepath.Join(fsdir, "sub01", "label", "lh.aparc.annot"))
}

func TestConformedToNative(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	cfg := fakeConfig(t, map[string]string{
		"tkregister2": "printf '%s\\n' \"$*\" > " + argsFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	touch(t, filepath.Join(fsdir, "sub01", "mri", "rawavg.mgz"))
	touch(t, filepath.Join(fsdir, "sub01", "mri", "orig.mgz"))

	trfFiles, err := ConformedToNative(context.Background(), cfg,
		fsdir, filepath.Join("*", "mri"), outdir)
	require.NoError(t, err)

	expected := filepath.Join(outdir, "sub01", "convert", "register.native.dat")
	assert.Equal(t, []string{expected}, trfFiles)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--reg "+expected)
	assert.Contains(t, string(args), "--noedit --regheader")
}

func TestConformedToNativeMissingVolume(t *testing.T) {
	cfg := fakeConfig(t, map[string]string{"tkregister2": "exit 0"})

	fsdir := t.TempDir()
	touch(t, filepath.Join(fsdir, "sub01", "mri", "rawavg.mgz"))

	_, err := ConformedToNative(context.Background(), cfg,
		fsdir, filepath.Join("*", "mri"), t.TempDir())
	assert.Error(t, err)
}

func TestTkregisterTranslation(t *testing.T) {
	script := `case "$1" in
--vox2ras-tkr)
  echo "-1.0 0.0 0.0 128.0"
  echo "0.0 0.0 1.0 -128.0"
  echo "0.0 -1.0 0.0 128.0"
  echo "0.0 0.0 0.0 1.0" ;;
--vox2ras)
  echo "-1.0 0.0 0.0 130.0"
  echo "0.0 0.0 1.0 -120.0"
  echo "0.0 -1.0 0.0 127.0"
  echo "0.0 0.0 0.0 1.0" ;;
esac`
	cfg := fakeConfig(t, map[string]string{"mri_info": script})

	mgz := touch(t, filepath.Join(t.TempDir(), "aseg.mgz"))
	translation, err := TkregisterTranslation(context.Background(), cfg, mgz)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, translation.At(0, 0), 1e-9)
	assert.InDelta(t, 2.0, translation.At(0, 3), 1e-9)
	assert.InDelta(t, 8.0, translation.At(1, 3), 1e-9)
	assert.InDelta(t, -1.0, translation.At(2, 3), 1e-9)
	assert.InDelta(t, 1.0, translation.At(3, 3), 1e-9)
}

func TestParseAffineRejectsGarbage(t *testing.T) {
	_, err := parseAffine("not a matrix")
	assert.Error(t, err)

	_, err = parseAffine("1.0 2.0 3.0")
	assert.Error(t, err)
}
