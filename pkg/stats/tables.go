// Package stats aggregates per-subject FreeSurfer statistics into group
// tables and computes population summaries over them.
package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/neurospin/gofreesurfer/pkg/conversions"
)

// Desikan and Destrieux parcellation measures exported per hemisphere.
var aparcMeasures = []string{
	"area", "volume", "thickness", "thicknessstd",
	"meancurv", "gauscurv", "foldind", "curvind",
}

// AparcStats2Table exports the '?h.aparc.stats' parcellation measures of
// every subject under fsdir into comma separated group tables, for both the
// Desikan and Destrieux templates. Tables land in <outdir>/stats. It
// returns the generated files.
func AparcStats2Table(ctx context.Context, cfg conversions.Config, fsdir, outdir string) ([]string, error) {
	subjects, fsoutdir, err := statsSubjects(fsdir, outdir)
	if err != nil {
		return nil, err
	}
	cfg.SubjectsDir = fsdir

	var statFiles []string
	run := func(statFile string, extra ...string) error {
		cmd := append([]string{"aparcstats2table", "--subjects"}, subjects...)
		cmd = append(cmd, extra...)
		cmd = append(cmd, "--tablefile", statFile, "--delimiter", "comma", "--parcid-only")
		if _, err := cfg.Run(ctx, cmd); err != nil {
			return err
		}
		statFiles = append(statFiles, statFile)
		return nil
	}

	for _, hemi := range []string{"lh", "rh"} {
		for _, meas := range aparcMeasures {
			statFile := filepath.Join(fsoutdir,
				fmt.Sprintf("aparc_stats_%s_%s.csv", hemi, meas))
			if err := run(statFile, "--hemi", hemi, "--meas", meas); err != nil {
				return nil, err
			}
		}
	}
	for _, hemi := range []string{"lh", "rh"} {
		for _, meas := range aparcMeasures {
			statFile := filepath.Join(fsoutdir,
				fmt.Sprintf("aparc.2009s_stats_%s_%s.csv", hemi, meas))
			if err := run(statFile, "--parc", "aparc.a2009s", "--hemi", hemi,
				"--meas", meas); err != nil {
				return nil, err
			}
		}
	}
	return statFiles, nil
}

// AsegStats2Table exports the subcortical segmentation volumes of every
// subject under fsdir into a comma separated group table
// <outdir>/stats/aseg_stats_volume.csv.
func AsegStats2Table(ctx context.Context, cfg conversions.Config, fsdir, outdir string) ([]string, error) {
	subjects, fsoutdir, err := statsSubjects(fsdir, outdir)
	if err != nil {
		return nil, err
	}
	cfg.SubjectsDir = fsdir

	statFile := filepath.Join(fsoutdir, "aseg_stats_volume.csv")
	cmd := append([]string{"asegstats2table", "--subjects"}, subjects...)
	cmd = append(cmd, "--meas", "volume", "--tablefile", statFile,
		"--delimiter", "comma")
	if _, err := cfg.Run(ctx, cmd); err != nil {
		return nil, err
	}
	return []string{statFile}, nil
}

// TractStats2Table exports the tracula pathway summaries
// 'dpath/<pathway>/pathstats.overall.txt' of every subject under fsdir into
// one group table per pathway, under <outdir>/overall_stats.
func TractStats2Table(ctx context.Context, cfg conversions.Config, fsdir, outdir string) ([]string, error) {
	for _, path := range []string{fsdir, outdir} {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("'%s' is not a valid directory", path)
		}
	}
	cfg.SubjectsDir = fsdir

	pathStatFiles, err := filepath.Glob(
		filepath.Join(fsdir, "*", "dpath", "*", "pathstats.overall.txt"))
	if err != nil {
		return nil, err
	}

	pathwayFiles := map[string][]string{}
	for _, path := range pathStatFiles {
		parts := strings.Split(path, string(os.PathSeparator))
		pathway := parts[len(parts)-2]
		pathwayFiles[pathway] = append(pathwayFiles[pathway], path)
	}

	fsoutdir := filepath.Join(outdir, "overall_stats")
	if err := os.MkdirAll(fsoutdir, 0o755); err != nil {
		return nil, err
	}

	pathways := make([]string, 0, len(pathwayFiles))
	for name := range pathwayFiles {
		pathways = append(pathways, name)
	}
	sort.Strings(pathways)

	var statFiles []string
	for _, name := range pathways {
		statFile := filepath.Join(fsoutdir, name+".csv")
		cmd := append([]string{"tractstats2table", "--inputs"}, pathwayFiles[name]...)
		cmd = append(cmd, "--overall", "--tablefile", statFile)
		if _, err := cfg.Run(ctx, cmd); err != nil {
			return nil, err
		}
		statFiles = append(statFiles, statFile)
	}
	return statFiles, nil
}

// statsSubjects lists the subjects carrying a stats directory and prepares
// the output stats folder.
func statsSubjects(fsdir, outdir string) ([]string, string, error) {
	for _, path := range []string{fsdir, outdir} {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return nil, "", fmt.Errorf("'%s' is not a valid directory", path)
		}
	}

	statDirs, err := filepath.Glob(filepath.Join(fsdir, "*", "stats"))
	if err != nil {
		return nil, "", err
	}
	subjects := make([]string, 0, len(statDirs))
	for _, dir := range statDirs {
		parts := strings.Split(dir, string(os.PathSeparator))
		subjects = append(subjects, parts[len(parts)-2])
	}
	sort.Strings(subjects)

	fsoutdir := filepath.Join(outdir, "stats")
	if err := os.MkdirAll(fsoutdir, 0o755); err != nil {
		return nil, "", err
	}
	return subjects, fsoutdir, nil
}
