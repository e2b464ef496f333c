package stats

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// RegionScores holds the individual values of one region across the
// population, with their mean and standard deviation.
type RegionScores struct {
	Values []float64 `json:"values"`
	Mean   float64   `json:"m"`
	Std    float64   `json:"s"`
}

// PopulationStats maps hemisphere ("lh", "rh" or "aseg") to measure name to
// region scores.
type PopulationStats map[string]map[string]map[string]*RegionScores

// PopulationSummary parses the group tables generated by AparcStats2Table
// and AsegStats2Table and computes per-region means and standard
// deviations. With a non-empty subject identifier only that subject's
// scores are collected.
func PopulationSummary(statsdir, sid string) (PopulationStats, error) {
	info, err := os.Stat(statsdir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("'%s' stats directory does not exist", statsdir)
	}

	popStats := PopulationStats{
		"lh":   {},
		"rh":   {},
		"aseg": {},
	}

	tables, err := filepath.Glob(filepath.Join(statsdir, "*.csv"))
	if err != nil {
		return nil, err
	}
	for _, fpath := range tables {
		basename := filepath.Base(fpath)
		// The Destrieux tables duplicate region names across atlases.
		if strings.HasPrefix(basename, "aparc.2009s") {
			continue
		}
		basename = strings.SplitN(basename, ".", 2)[0]

		var hemi, sname, subjectHeader string
		switch {
		case strings.HasPrefix(basename, "aseg"):
			parts := strings.Split(basename, "_")
			if len(parts) != 3 {
				continue
			}
			hemi = "aseg"
			sname = parts[2]
			subjectHeader = "Measure:volume"
		case strings.HasPrefix(basename, "aparc"):
			parts := strings.Split(basename, "_")
			if len(parts) != 4 {
				continue
			}
			hemi = parts[2]
			sname = parts[3]
			subjectHeader = fmt.Sprintf("%s.%s.%s", hemi, parts[0], sname)
		default:
			continue
		}

		if _, ok := popStats[hemi]; !ok {
			return nil, fmt.Errorf("unexpected hemisphere '%s' in table '%s'", hemi, fpath)
		}
		regions, ok := popStats[hemi][sname]
		if !ok {
			regions = map[string]*RegionScores{}
			popStats[hemi][sname] = regions
		}

		if err := parseTable(fpath, subjectHeader, sid, regions); err != nil {
			return nil, err
		}

		for _, scores := range regions {
			scores.Mean = stat.Mean(scores.Values, nil)
			scores.Std = popStd(scores.Values, scores.Mean)
		}
	}
	return popStats, nil
}

func parseTable(fpath, subjectHeader, sid string, regions map[string]*RegionScores) error {
	file, err := os.Open(fpath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("parsing '%s': %w", fpath, err)
	}
	if len(records) < 1 {
		return fmt.Errorf("empty stats table '%s'", fpath)
	}

	header := records[0]
	subjectCol := -1
	for i, name := range header {
		if name == subjectHeader {
			subjectCol = i
			break
		}
	}
	if subjectCol < 0 {
		return fmt.Errorf("missing subject column '%s' in '%s'", subjectHeader, fpath)
	}

	for _, record := range records[1:] {
		if sid != "" && record[subjectCol] != sid {
			continue
		}
		for i, field := range record {
			if i == subjectCol {
				continue
			}
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return fmt.Errorf("bad value '%s' in '%s': %w", field, fpath, err)
			}
			region := header[i]
			scores, ok := regions[region]
			if !ok {
				scores = &RegionScores{}
				regions[region] = scores
			}
			scores.Values = append(scores.Values, value)
		}
	}
	return nil
}

// popStd is the population standard deviation, matching the convention of
// the group tables consumers.
func popStd(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
