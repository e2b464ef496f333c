package tracula

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultMinBval is the b-value threshold under which a volume counts as a
// baseline (b0) acquisition.
const DefaultMinBval = 200.0

// Diffusion holds the acquisition scheme of a diffusion-weighted series:
// one b-value and one gradient direction per volume.
type Diffusion struct {
	Bvals []float64
	// Bvecs is stored one row per direction (N x 3).
	Bvecs [][3]float64
	// NB0s is the number of baseline volumes, i.e. b-values under the
	// detection threshold.
	NB0s int
}

// ReadBvalsBvecs parses the b-values and diffusion-sensitized directions of
// an acquisition. The bvecs file may be laid out as 3 rows of N columns or
// N rows of 3 columns; the result is always one row per direction.
func ReadBvalsBvecs(bvalsPath, bvecsPath string, minBval float64) (*Diffusion, error) {
	bvals, err := readFloatTable(bvalsPath)
	if err != nil {
		return nil, err
	}
	flat := flatten(bvals)

	table, err := readFloatTable(bvecsPath)
	if err != nil {
		return nil, err
	}
	bvecs, err := normalizeBvecs(table, bvecsPath)
	if err != nil {
		return nil, err
	}

	if len(flat) != len(bvecs) {
		return nil, fmt.Errorf(
			"mismatched diffusion scheme: %d b-values for %d directions",
			len(flat), len(bvecs))
	}

	diffusion := &Diffusion{Bvals: flat, Bvecs: bvecs}
	for _, bval := range flat {
		if bval < minBval {
			diffusion.NB0s++
		}
	}
	return diffusion, nil
}

// WriteBvecsNx3 saves the directions one row per direction, the layout
// trac-all expects.
func (d *Diffusion) WriteBvecsNx3(path string) error {
	var builder strings.Builder
	for _, vec := range d.Bvecs {
		fmt.Fprintf(&builder, "%.18e %.18e %.18e\n", vec[0], vec[1], vec[2])
	}
	return os.WriteFile(path, []byte(builder.String()), 0o644)
}

func readFloatTable(path string) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var table [][]float64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad value '%s' in '%s': %w", field, path, err)
			}
			row[i] = value
		}
		table = append(table, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("empty diffusion scheme file '%s'", path)
	}
	return table, nil
}

func flatten(table [][]float64) []float64 {
	var flat []float64
	for _, row := range table {
		flat = append(flat, row...)
	}
	return flat
}

func normalizeBvecs(table [][]float64, path string) ([][3]float64, error) {
	rows := len(table)
	cols := len(table[0])
	for _, row := range table {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged directions table in '%s'", path)
		}
	}

	switch {
	case cols == 3:
		bvecs := make([][3]float64, rows)
		for i, row := range table {
			bvecs[i] = [3]float64{row[0], row[1], row[2]}
		}
		return bvecs, nil
	case rows == 3:
		bvecs := make([][3]float64, cols)
		for j := 0; j < cols; j++ {
			bvecs[j] = [3]float64{table[0][j], table[1][j], table[2][j]}
		}
		return bvecs, nil
	default:
		return nil, fmt.Errorf(
			"directions table in '%s' is %dx%d, expected a 3xN or Nx3 layout",
			path, rows, cols)
	}
}
