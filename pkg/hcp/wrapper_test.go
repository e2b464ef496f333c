package hcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurospin/gofreesurfer/pkg/fswrap"
)

// fakeConfigs writes stand-in FreeSurfer and FSL setup scripts and returns
// their paths along with the fake install roots.
func fakeConfigs(t *testing.T) (fsconfig, fslconfig, fsHome, fslDir string) {
	t.Helper()

	fsHome = t.TempDir()
	fslDir = t.TempDir()

	fsconfig = filepath.Join(fsHome, "SetUpFreeSurfer.sh")
	require.NoError(t, os.WriteFile(fsconfig, []byte(
		fmt.Sprintf("export FREESURFER_HOME=%s\n", fsHome)), 0o755))

	fslconfig = filepath.Join(fslDir, "fsl.sh")
	require.NoError(t, os.WriteFile(fslconfig, []byte(
		fmt.Sprintf("export FSLDIR=%s\n", fslDir)), 0o755))

	return fsconfig, fslconfig, fsHome, fslDir
}

func TestNewWrapperMergesEnvironments(t *testing.T) {
	fsconfig, fslconfig, fsHome, fslDir := fakeConfigs(t)

	w, err := NewWrapper(map[string]string{
		"HCPPIPEDIR": "/opt/hcp",
		"CARET7DIR":  "/opt/workbench",
	}, fsconfig, fslconfig)
	require.NoError(t, err)

	assert.Equal(t, fsHome, w.Env["FREESURFER_HOME"])
	assert.Equal(t, fslDir, w.Env["FSLDIR"])
	assert.Equal(t, "/opt/hcp", w.Env["HCPPIPEDIR"])
	assert.Equal(t, "/opt/workbench", w.Env["CARET7DIR"])
}

func TestRunFormatsOptionsAsKeyValue(t *testing.T) {
	fsconfig, fslconfig, _, _ := fakeConfigs(t)

	scriptDir := t.TempDir()
	outFile := filepath.Join(scriptDir, "args.txt")
	script := filepath.Join(scriptDir, "Pipeline.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\nprintf '%s\\n' \"$@\" > "+outFile+"\n"), 0o755))

	w, err := NewWrapper(nil, fsconfig, fslconfig)
	require.NoError(t, err)

	err = w.Run(context.Background(), []string{
		script, "--subject", "sub01", "--path", "/data"})
	require.NoError(t, err)

	args, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "--subject=sub01\n--path=/data\n", string(args))
}

func TestRunOddArgumentsRejected(t *testing.T) {
	fsconfig, fslconfig, _, _ := fakeConfigs(t)
	w, err := NewWrapper(nil, fsconfig, fslconfig)
	require.NoError(t, err)

	err = w.Run(context.Background(), []string{"/bin/sh", "--flag"})
	assert.Error(t, err)
}

func TestRunMissingScriptIsConfigurationError(t *testing.T) {
	fsconfig, fslconfig, _, _ := fakeConfigs(t)
	w, err := NewWrapper(nil, fsconfig, fslconfig)
	require.NoError(t, err)

	err = w.Run(context.Background(), []string{"/nonexistent/Pipeline.sh"})
	var confErr *fswrap.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestRunFailureCarriesOutput(t *testing.T) {
	fsconfig, fslconfig, _, _ := fakeConfigs(t)

	scriptDir := t.TempDir()
	script := filepath.Join(scriptDir, "Pipeline.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\necho broken >&2\nexit 1\n"), 0o755))

	w, err := NewWrapper(nil, fsconfig, fslconfig)
	require.NoError(t, err)

	err = w.Run(context.Background(), []string{script})
	var runErr *fswrap.RuntimeError
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, runErr.Output, "broken")
	assert.Equal(t, 1, w.ExitCode)
}

func TestVersionProbes(t *testing.T) {
	fsconfig, fslconfig, fsHome, fslDir := fakeConfigs(t)

	require.NoError(t, os.WriteFile(
		filepath.Join(fsHome, "build-stamp.txt"),
		[]byte("freesurfer-stable-pub-v5.3.0-HCP"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(fslDir, "etc"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(fslDir, "etc", "fslversion"), []byte("5.0.6\n"), 0o644))

	hcpDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(hcpDir, "version.txt"), []byte("3.4.0\n"), 0o644))

	w, err := NewWrapper(map[string]string{"HCPPIPEDIR": hcpDir}, fsconfig, fslconfig)
	require.NoError(t, err)

	assert.Equal(t, "5.3.0", w.FreeSurferVersion())
	assert.Equal(t, "5.0.6", w.FSLVersion())
	assert.Equal(t, "3.4.0", w.HCPVersion())
}

func TestVersionProbesMissing(t *testing.T) {
	fsconfig, fslconfig, _, _ := fakeConfigs(t)
	w, err := NewWrapper(nil, fsconfig, fslconfig)
	require.NoError(t, err)

	assert.Empty(t, w.FreeSurferVersion())
	assert.Empty(t, w.HCPVersion())
}
