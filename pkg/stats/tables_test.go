package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
)

// fakeConfig builds a conversions.Config backed by a stand-in FreeSurfer
// install whose bin directory holds the given stub commands.
func fakeConfig(t *testing.T, commands map[string]string) conversions.Config {
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

	return conversions.Config{FSConfig: setup}
}

func subjectTree(t *testing.T, fsdir string, subjects ...string) {
	t.Helper()
	for _, sid := range subjects {
		require.NoError(t, os.MkdirAll(filepath.Join(fsdir, sid, "stats"), 0o755))
	}
}

func TestAparcStats2Table(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "calls.txt")
	cfg := fakeConfig(t, map[string]string{
		"aparcstats2table": "printf '%s\\n' \"$*\" >> " + logFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	subjectTree(t, fsdir, "sub01", "sub02")

	statFiles, err := AparcStats2Table(context.Background(), cfg, fsdir, outdir)
	require.NoError(t, err)

	// 2 hemispheres x 8 measures x 2 atlases.
	assert.Len(t, statFiles, 32)
	assert.Contains(t, statFiles,
		filepath.Join(outdir, "stats", "aparc_stats_lh_thickness.csv"))
	assert.Contains(t, statFiles,
		filepath.Join(outdir, "stats", "aparc.2009s_stats_rh_area.csv"))

	calls, err := os.ReadFile(logFile)
	require.NoError(t, err)
	got := string(calls)
	assert.Contains(t, got, "--subjects sub01 sub02")
	assert.Contains(t, got, "--parc aparc.a2009s")
	assert.Contains(t, got, "--delimiter comma --parcid-only")
}

func TestAsegStats2Table(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "calls.txt")
	cfg := fakeConfig(t, map[string]string{
		"asegstats2table": "printf '%s\\n' \"$*\" > " + logFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	subjectTree(t, fsdir, "sub01")

	statFiles, err := AsegStats2Table(context.Background(), cfg, fsdir, outdir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outdir, "stats", "aseg_stats_volume.csv")}, statFiles)

	calls, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(calls), "--meas volume")
}

func TestTractStats2Table(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "calls.txt")
	cfg := fakeConfig(t, map[string]string{
		"tractstats2table": "printf '%s\\n' \"$*\" >> " + logFile,
	})

	fsdir := t.TempDir()
	outdir := t.TempDir()
	for _, sid := range []string{"sub01", "sub02"} {
		for _, pathway := range []string{"lh.cst_AS", "rh.cst_AS"} {
			path := filepath.Join(fsdir, sid, "dpath", pathway, "pathstats.overall.txt")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		}
	}

	statFiles, err := TractStats2Table(context.Background(), cfg, fsdir, outdir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outdir, "overall_stats", "lh.cst_AS.csv"),
		filepath.Join(outdir, "overall_stats", "rh.cst_AS.csv"),
	}, statFiles)

	calls, err := os.ReadFile(logFile)
	require.NoError(t, err)
	got := string(calls)
	assert.Contains(t, got,
		filepath.Join(fsdir, "sub01", "dpath", "lh.cst_AS", "pathstats.overall.txt"))
	assert.Contains(t, got, "--overall --tablefile")
}

func TestStatsRejectBadDirectories(t *testing.T) {
	cfg := fakeConfig(t, nil)
	_, err := AparcStats2Table(context.Background(), cfg, "/missing", t.TempDir())
	assert.ErrorContains(t, err, "not a valid directory")
	_, err = AsegStats2Table(context.Background(), cfg, t.TempDir(), "/missing")
	assert.ErrorContains(t, err, "not a valid directory")
}
