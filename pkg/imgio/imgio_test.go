package imgio

import (
	"compress/gzip"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMGZ builds a gzip compressed MGH volume of shape (len(values),1,1)
// with float voxels.
func writeMGZ(t *testing.T, path string, values []float32) {
	t.Helper()

	header := make([]byte, mghHeaderSize)
	binary.BigEndian.PutUint32(header[0:], 1)
	binary.BigEndian.PutUint32(header[4:], uint32(len(values)))
	binary.BigEndian.PutUint32(header[8:], 1)
	binary.BigEndian.PutUint32(header[12:], 1)
	binary.BigEndian.PutUint32(header[16:], 1)
	binary.BigEndian.PutUint32(header[20:], mghFloat)

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	gz := gzip.NewWriter(file)
	_, err = gz.Write(header)
	require.NoError(t, err)
	for _, v := range values {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
		_, err = gz.Write(buf[:])
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
}

func TestReadMGH(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texture.mgz")
	writeMGZ(t, path, []float32{1.5, -2.25, 0, 42})

	volume, err := ReadMGH(path)
	require.NoError(t, err)

	assert.Equal(t, 4, volume.Width)
	assert.Equal(t, 1, volume.Height)
	assert.Equal(t, 1, volume.Depth)
	assert.Equal(t, 1, volume.Frames)
	assert.Equal(t, []float64{1.5, -2.25, 0, 42}, volume.Values)
}

func TestReadMGHRejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texture.mgz")

	header := make([]byte, mghHeaderSize)
	binary.BigEndian.PutUint32(header[0:], 7)
	file, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(file)
	_, err = gz.Write(header)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, file.Close())

	_, err = ReadMGH(path)
	assert.ErrorContains(t, err, "unsupported volume version")
}

// writeNIfTI builds a minimal little-endian NIfTI-1 header.
func writeNIfTI(t *testing.T, path string, dims []int16) {
	t.Helper()

	raw := make([]byte, niftiHeaderSize)
	binary.LittleEndian.PutUint32(raw[0:], niftiHeaderSize)
	binary.LittleEndian.PutUint16(raw[niftiDimOffset:], uint16(len(dims)))
	for i, d := range dims {
		binary.LittleEndian.PutUint16(raw[niftiDimOffset+2+2*i:], uint16(d))
	}
	copy(raw[niftiMagicOffset:], "n+1\x00")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestReadNIfTIHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.nii")
	writeNIfTI(t, path, []int16{256, 256, 180})

	header, err := ReadNIfTIHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "n+1", header.Magic)
	assert.Equal(t, 3, header.NDim)
	assert.Equal(t, 256, header.Dim[0])
	assert.Equal(t, 180, header.Dim[2])
	assert.True(t, IsNIfTI(path))
}

func TestIsNIfTIRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-image.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	assert.False(t, IsNIfTI(path))
}

func TestIsDICOMRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dicom.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o644))
	assert.False(t, IsDICOM(path))

	_, err := ReadDICOMInfo(path)
	assert.ErrorContains(t, err, "DICM marker is missing")
}

func TestIsDICOMRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.dcm")
	require.NoError(t, os.WriteFile(path, make([]byte, dicomMagicOffset), 0o644))
	assert.False(t, IsDICOM(path))
}

func TestIsDICOMRejectsMarkerWithoutDataset(t *testing.T) {
	// The DICM marker alone is not enough, the file meta group must parse.
	raw := make([]byte, dicomMagicOffset+4)
	copy(raw[dicomMagicOffset:], "DICM")
	path := filepath.Join(t.TempDir(), "empty.dcm")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	assert.False(t, IsDICOM(path))
}
