package datacheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayoutOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mri/transforms: 14\nconvert: 30\n"), 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)

	assert.Equal(t, 14, layout[filepath.Join("mri", "transforms")])
	assert.Equal(t, 30, layout["convert"])
	// Untouched entries keep the reference counts.
	assert.Equal(t, 69, layout["label"])
}

func TestLoadLayoutRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mri: [not, a, count]\n"), 0o644))

	_, err := LoadLayout(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("mri: -3\n"), 0o644))
	_, err = LoadLayout(path)
	assert.Error(t, err)
}
