// Package datacheck verifies that a FreeSurfer processing home directory
// contains the expected output files for every subject: per-folder file
// counts plus the recon-all completion status.
package datacheck

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/neurospin/gofreesurfer/pkg/imgio"
)

// expectedLayout is the reference file count of each folder of a complete
// cortical reconstruction.
func expectedLayout() map[string]int {
	return map[string]int{
		"bem":                                   0,
		"label":                                 69,
		"mri":                                   35,
		filepath.Join("mri", "orig"):            1,
		filepath.Join("mri", "transforms"):      13,
		filepath.Join("mri", "transforms", "bak"): 0,
		"scripts": 11,
		"src":     0,
		"stats":   18,
		"surf":    70,
		"tmp":     0,
		"touch":   67,
		"trash":   0,
	}
}

// Options parametrizes a check run.
type Options struct {
	// FSDir is the FreeSurfer processing home directory.
	FSDir string
	// SubjectRegex filters the FSDir subfolders down to subject
	// identifiers; a folder is a subject only when the whole name
	// matches.
	SubjectRegex string
	// SubjectID restricts the check to one subject.
	SubjectID string
	// ConversionCount, when positive, is the expected file count of the
	// per-subject convert folder.
	ConversionCount int
	// QCCount, when positive, is the expected file count of the
	// per-subject convert/qc folder.
	QCCount int
	// Layout replaces the reference layout, see LoadLayout.
	Layout map[string]int
}

// SubjectStatus is the observed layout of one subject tree.
type SubjectStatus struct {
	// Counts maps each reference folder to its observed file count.
	// Folders absent from the tree are absent from the map.
	Counts map[string]int
	// ExtraPaths lists the tree folders outside the reference layout.
	ExtraPaths []string
	// Finished reports whether recon-all logged a clean exit.
	Finished bool
	// CountsOK reports whether every reference folder holds the
	// expected number of files.
	CountsOK bool
}

// Report aggregates the per-subject statuses of one check run.
type Report struct {
	Expected map[string]int
	Subjects map[string]*SubjectStatus
}

// Check walks the subject trees of the processing home directory and
// compares them against the reference layout.
func Check(opts Options) (*Report, error) {
	info, err := os.Stat(opts.FSDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("'%s' is not a valid directory", opts.FSDir)
	}
	subjectRegex, err := regexp.Compile(opts.SubjectRegex)
	if err != nil {
		return nil, fmt.Errorf("bad subject expression '%s': %w", opts.SubjectRegex, err)
	}

	expected := opts.Layout
	if expected == nil {
		expected = expectedLayout()
	}
	if opts.ConversionCount > 0 {
		expected["convert"] = opts.ConversionCount
	}
	if opts.QCCount > 0 {
		expected[filepath.Join("convert", "qc")] = opts.QCCount
	}

	var candidates []string
	if opts.SubjectID != "" {
		candidates = []string{opts.SubjectID}
	} else {
		entries, err := os.ReadDir(opts.FSDir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			candidates = append(candidates, entry.Name())
		}
	}

	report := &Report{Expected: expected, Subjects: map[string]*SubjectStatus{}}
	for _, sid := range candidates {
		if match := subjectRegex.FindString(sid); match != sid {
			continue
		}
		status, err := checkSubject(filepath.Join(opts.FSDir, sid), expected)
		if err != nil {
			return nil, err
		}
		report.Subjects[sid] = status
	}
	return report, nil
}

func checkSubject(sidDir string, expected map[string]int) (*SubjectStatus, error) {
	status := &SubjectStatus{Counts: map[string]int{}}

	err := filepath.WalkDir(sidDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		rpath, err := filepath.Rel(sidDir, path)
		if err != nil {
			return err
		}
		if rpath == "." {
			return nil
		}
		count, err := countFiles(path)
		if err != nil {
			return err
		}
		if _, ok := expected[rpath]; ok {
			status.Counts[rpath] = count
		} else {
			status.ExtraPaths = append(status.ExtraPaths, rpath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(status.ExtraPaths)

	status.CountsOK = true
	for rpath, want := range expected {
		if got, ok := status.Counts[rpath]; !ok || got != want {
			status.CountsOK = false
			break
		}
	}

	status.Finished = reconFinished(filepath.Join(sidDir, "scripts", "recon-all-status.log"))
	return status, nil
}

func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count, nil
}

// reconFinished reports whether the last non-empty line of the recon-all
// status log announces a clean exit.
func reconFinished(logPath string) bool {
	file, err := os.Open(logPath)
	if err != nil {
		return false
	}
	defer file.Close()

	last := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return strings.Contains(last, "finished without error")
}

// CheckAnatomical verifies that an anatomical input is a recognized image:
// a NIfTI volume or a DICOM file.
func CheckAnatomical(path string) error {
	if imgio.IsNIfTI(path) {
		return nil
	}
	if imgio.IsDICOM(path) {
		return nil
	}
	return fmt.Errorf("'%s' is neither a NIfTI volume nor a DICOM file", path)
}

// Summary gathers the run totals of a report.
type Summary struct {
	Total        int
	Finished     int
	Failed       int
	FailedSIDs   []string
	CountsOK     int
	CountsFailed int
	CountSIDs    []string
	// Incomplete counts the subjects failing either check, each subject
	// counted once.
	Incomplete int
}

// Summarize computes the completion totals of a report.
func (r *Report) Summarize() Summary {
	summary := Summary{Total: len(r.Subjects)}
	for sid, status := range r.Subjects {
		if status.Finished {
			summary.Finished++
		} else {
			summary.Failed++
			summary.FailedSIDs = append(summary.FailedSIDs, sid)
		}
		if status.CountsOK {
			summary.CountsOK++
		} else {
			summary.CountsFailed++
			summary.CountSIDs = append(summary.CountSIDs, sid)
		}
		if !status.Finished || !status.CountsOK {
			summary.Incomplete++
		}
	}
	sort.Strings(summary.FailedSIDs)
	sort.Strings(summary.CountSIDs)
	return summary
}

// WriteSummary renders the run totals as a table.
func (r *Report) WriteSummary(w io.Writer) {
	summary := r.Summarize()

	table := tablewriter.NewWriter(w)
	table.Header("Check", "Result", "Subjects")
	table.Append("recon-all finished",
		fmt.Sprintf("%d/%d", summary.Finished, summary.Total), "")
	table.Append("recon-all failed",
		fmt.Sprintf("%d/%d", summary.Failed, summary.Total),
		strings.Join(summary.FailedSIDs, " "))
	table.Append("file counts ok",
		fmt.Sprintf("%d/%d", summary.CountsOK, summary.Total), "")
	table.Append("file counts failed",
		fmt.Sprintf("%d/%d", summary.CountsFailed, summary.Total),
		strings.Join(summary.CountSIDs, " "))
	table.Render()
}

// WriteSubjectTree renders the folder by folder comparison of one subject.
func (r *Report) WriteSubjectTree(w io.Writer, sid string) error {
	status, ok := r.Subjects[sid]
	if !ok {
		return fmt.Errorf("subject '%s' is not part of the report", sid)
	}

	folders := make([]string, 0, len(r.Expected))
	for rpath := range r.Expected {
		folders = append(folders, rpath)
	}
	sort.Strings(folders)

	table := tablewriter.NewWriter(w)
	table.Header("Folder", "Observed", "Reference")
	for _, rpath := range folders {
		observed := "missing"
		if count, ok := status.Counts[rpath]; ok {
			observed = strconv.Itoa(count)
		}
		table.Append(rpath, observed, strconv.Itoa(r.Expected[rpath]))
	}
	for _, extra := range status.ExtraPaths {
		table.Append(extra, "extra", "-")
	}
	table.Render()
	return nil
}
