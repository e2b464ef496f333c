// Package imgio reads just enough of the neuroimaging file formats to
// identify inputs and extract texture values: MGH/MGZ volumes, NIfTI-1
// headers and DICOM metadata.
package imgio

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// MGH data types.
const (
	mghUchar = 0
	mghInt   = 1
	mghFloat = 3
	mghShort = 4
)

// mghHeaderSize is the fixed offset of the voxel data.
const mghHeaderSize = 284

// MGHVolume holds the dimensions and voxel values of an MGH volume, with
// values widened to float64.
type MGHVolume struct {
	Width, Height, Depth, Frames int
	Values                       []float64
}

// ReadMGH loads an MGH volume. Files ending in '.mgz' are transparently
// decompressed.
func ReadMGH(path string) (*MGHVolume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".mgz") || strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a valid compressed volume: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	header := make([]byte, mghHeaderSize)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("reading header of '%s': %w", path, err)
	}

	version := int32(binary.BigEndian.Uint32(header[0:]))
	if version != 1 {
		return nil, fmt.Errorf("'%s' has unsupported volume version %d", path, version)
	}

	volume := &MGHVolume{
		Width:  int(int32(binary.BigEndian.Uint32(header[4:]))),
		Height: int(int32(binary.BigEndian.Uint32(header[8:]))),
		Depth:  int(int32(binary.BigEndian.Uint32(header[12:]))),
		Frames: int(int32(binary.BigEndian.Uint32(header[16:]))),
	}
	dtype := int32(binary.BigEndian.Uint32(header[20:]))

	count := volume.Width * volume.Height * volume.Depth * volume.Frames
	if count <= 0 {
		return nil, fmt.Errorf("'%s' has invalid dimensions", path)
	}

	volume.Values = make([]float64, count)
	switch dtype {
	case mghUchar:
		raw := make([]byte, count)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			volume.Values[i] = float64(v)
		}
	case mghShort:
		raw := make([]byte, 2*count)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		for i := range volume.Values {
			volume.Values[i] = float64(int16(binary.BigEndian.Uint16(raw[2*i:])))
		}
	case mghInt:
		raw := make([]byte, 4*count)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		for i := range volume.Values {
			volume.Values[i] = float64(int32(binary.BigEndian.Uint32(raw[4*i:])))
		}
	case mghFloat:
		raw := make([]byte, 4*count)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		for i := range volume.Values {
			bits := binary.BigEndian.Uint32(raw[4*i:])
			volume.Values[i] = float64(math.Float32frombits(bits))
		}
	default:
		return nil, fmt.Errorf("'%s' has unsupported data type %d", path, dtype)
	}
	return volume, nil
}
