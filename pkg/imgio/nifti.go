package imgio

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// NIfTI-1 header layout constants.
const (
	niftiHeaderSize  = 348
	niftiMagicOffset = 344
	niftiDimOffset   = 40
)

// NIfTIHeader carries the fields needed to sanity check an anatomical
// input: the image dimensionality and per-axis sizes.
type NIfTIHeader struct {
	// Magic is "n+1" for single-file images, "ni1" for hdr/img pairs.
	Magic string
	NDim  int
	Dim   [7]int
}

// IsNIfTI reports whether the file starts with a NIfTI-1 header. Both
// plain and gzip compressed images are recognized.
func IsNIfTI(path string) bool {
	_, err := ReadNIfTIHeader(path)
	return err == nil
}

// ReadNIfTIHeader reads and validates the NIfTI-1 header of an image.
func ReadNIfTIHeader(path string) (*NIfTIHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a valid compressed image: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	raw := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, fmt.Errorf("reading header of '%s': %w", path, err)
	}

	magic := string(bytes.TrimRight(raw[niftiMagicOffset:niftiMagicOffset+4], "\x00"))
	if magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("'%s' has no NIfTI-1 magic", path)
	}

	// sizeof_hdr doubles as the byte order probe.
	order := binary.ByteOrder(binary.LittleEndian)
	if binary.LittleEndian.Uint32(raw[0:]) != niftiHeaderSize {
		if binary.BigEndian.Uint32(raw[0:]) != niftiHeaderSize {
			return nil, fmt.Errorf("'%s' has a corrupt NIfTI-1 header", path)
		}
		order = binary.BigEndian
	}

	header := &NIfTIHeader{Magic: magic}
	header.NDim = int(int16(order.Uint16(raw[niftiDimOffset:])))
	if header.NDim < 1 || header.NDim > 7 {
		return nil, fmt.Errorf("'%s' has invalid dimensionality %d", path, header.NDim)
	}
	for i := 0; i < 7; i++ {
		header.Dim[i] = int(int16(order.Uint16(raw[niftiDimOffset+2+2*i:])))
	}
	return header, nil
}
