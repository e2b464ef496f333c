// Package tracula drives the FreeSurfer tracula workflow: white matter
// pathway reconstruction from diffusion-weighted images and the group
// statistics over the reconstructed pathways.
package tracula

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/neurospin/gofreesurfer/pkg/fswrap"
)

// dmrirc is the trac-all configuration handed to every stage.
var dmrircTemplate = template.Must(template.New("dmrirc").Parse(`
setenv SUBJECTS_DIR {{.SubjectsDir}}
set subjlist = ({{.Subjects}})
set dtroot = {{.DTRoot}}
{{- if .DWI}}
set dcmlist = ({{.DWI}})
set bvecfile = {{.BvecFile}}
set bvalfile = {{.BvalFile}}
set nb0 = {{.NB0s}}
set dob0 = 0
set doeddy = {{if .DoEddy}}1{{else}}0{{end}}
set dorotbvecs = {{if .DoRotateBvecs}}1{{else}}0{{end}}
set doregflt = 0
set doregbbr = {{if .DoBBRegister}}1{{else}}0{{end}}
set doregmni = {{if .DoRegisterMNI}}1{{else}}0{{end}}
set doregcvs = 0
{{- end}}
`))

type dmrircData struct {
	SubjectsDir   string
	Subjects      string
	DTRoot        string
	DWI           string
	BvecFile      string
	BvalFile      string
	NB0s          int
	DoEddy        bool
	DoRotateBvecs bool
	DoBBRegister  bool
	DoRegisterMNI bool
}

var outlierRegex = regexp.MustCompile(`(?m)^Found outlier path: (.*)$`)

// Options parametrizes the per-subject pathway reconstruction, i.e. the
// trac-all -prep and -path stages.
type Options struct {
	// OutDir is the root receiving <subject>/dmri outputs.
	OutDir    string
	SubjectID string
	// DWI is the diffusion-weighted NIfTI series.
	DWI   string
	Bvals string
	Bvecs string
	// BedpostXDir holds a prior FSL bedpostX decomposition. Its files
	// are linked into <outdir>/<subject>/dmri.bedpostX, where trac-all
	// looks for them.
	BedpostXDir string
	// SubjectsDir is the FreeSurfer subjects directory. Falls back to
	// $SUBJECTS_DIR when empty.
	SubjectsDir string

	DoEddy        bool
	DoRotateBvecs bool
	DoBBRegister  bool
	DoRegisterMNI bool

	FSConfig  string
	FSLConfig string
}

// TracAll reconstructs the white matter pathways of one subject and
// returns the subject output directory.
func TracAll(ctx context.Context, opts Options) (string, error) {
	subjectsDir, err := resolveSubjectsDir(opts.SubjectsDir)
	if err != nil {
		return "", err
	}
	for _, path := range []string{opts.DWI, opts.Bvals, opts.Bvecs, opts.BedpostXDir, opts.FSConfig} {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("file or directory does not exist: %s", path)
		}
	}

	subjectOutDir := filepath.Join(opts.OutDir, opts.SubjectID)
	dmriDir := filepath.Join(subjectOutDir, "dmri")
	if err := os.MkdirAll(dmriDir, 0o755); err != nil {
		return "", err
	}

	diffusion, err := ReadBvalsBvecs(opts.Bvals, opts.Bvecs, DefaultMinBval)
	if err != nil {
		return "", err
	}

	// trac-all requires one direction per row.
	bvecsNx3 := filepath.Join(dmriDir, "bvecs_Nx3")
	if err := diffusion.WriteBvecsNx3(bvecsNx3); err != nil {
		return "", err
	}

	configPath := filepath.Join(subjectOutDir, "trac-all.dmrirc")
	err = writeConfig(configPath, dmrircData{
		SubjectsDir:   subjectsDir,
		Subjects:      opts.SubjectID,
		DTRoot:        opts.OutDir,
		DWI:           opts.DWI,
		BvecFile:      bvecsNx3,
		BvalFile:      opts.Bvals,
		NB0s:          diffusion.NB0s,
		DoEddy:        opts.DoEddy,
		DoRotateBvecs: opts.DoRotateBvecs,
		DoBBRegister:  opts.DoBBRegister,
		DoRegisterMNI: opts.DoRegisterMNI,
	})
	if err != nil {
		return "", err
	}

	if err := runTracAll(ctx, "-prep", configPath, subjectsDir, opts.FSConfig, opts.FSLConfig); err != nil {
		return "", err
	}

	if err := linkBedpostX(opts.BedpostXDir, filepath.Join(subjectOutDir, "dmri.bedpostX")); err != nil {
		return "", err
	}

	if err := runTracAll(ctx, "-path", configPath, subjectsDir, opts.FSConfig, opts.FSLConfig); err != nil {
		return "", err
	}
	return subjectOutDir, nil
}

// StatOptions parametrizes the group statistics stage over every subject
// carrying reconstructed pathways.
type StatOptions struct {
	// OutDir receives the moved stats directory and the outliers report.
	OutDir      string
	SubjectsDir string
	// TempDir hosts the transient configuration. Defaults to the OS
	// temporary directory.
	TempDir   string
	FSConfig  string
	FSLConfig string
}

// TracAllStat runs trac-all -stat over all the subjects of the subjects
// directory that own a dpath folder, moves the summary under
// <outdir>/stats and reports the pathways flagged as outliers in
// <outdir>/outliers.json. It returns the stats directory and the outlier
// file.
func TracAllStat(ctx context.Context, opts StatOptions) (string, string, error) {
	subjectsDir, err := resolveSubjectsDir(opts.SubjectsDir)
	if err != nil {
		return "", "", err
	}

	statDirs, err := filepath.Glob(filepath.Join(subjectsDir, "*", "dpath"))
	if err != nil {
		return "", "", err
	}
	seen := map[string]bool{}
	var subjects []string
	for _, dir := range statDirs {
		parts := strings.Split(dir, string(os.PathSeparator))
		sid := parts[len(parts)-2]
		if !seen[sid] {
			seen[sid] = true
			subjects = append(subjects, sid)
		}
	}
	sort.Strings(subjects)

	tempDir, err := os.MkdirTemp(opts.TempDir, "trac-all_")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "trac-all.dmrirc")
	err = writeConfig(configPath, dmrircData{
		SubjectsDir: subjectsDir,
		Subjects:    strings.Join(subjects, " "),
		DTRoot:      subjectsDir,
	})
	if err != nil {
		return "", "", err
	}

	if err := runTracAll(ctx, "-stat", configPath, subjectsDir, opts.FSConfig, opts.FSLConfig); err != nil {
		return "", "", err
	}

	// trac-all writes its summary under the subjects directory.
	statDir := filepath.Join(opts.OutDir, "stats")
	if err := os.Rename(filepath.Join(subjectsDir, "stats"), statDir); err != nil {
		return "", "", fmt.Errorf("moving stats to '%s': %w", opts.OutDir, err)
	}

	outlierFile := filepath.Join(opts.OutDir, "outliers.json")
	if err := writeOutliers(statDir, outlierFile); err != nil {
		return "", "", err
	}
	return statDir, outlierFile, nil
}

func runTracAll(ctx context.Context, stage, configPath, subjectsDir, fsconfig, fslconfig string) error {
	wrapper, err := fswrap.New([]string{"trac-all", stage, "-c", configPath}, fswrap.Options{
		Shfile:      fsconfig,
		SubjectsDir: subjectsDir,
		AddFSLEnv:   true,
		FSLShfile:   fslconfig,
	})
	if err != nil {
		return err
	}
	return wrapper.Run(ctx)
}

func writeConfig(path string, data dmrircData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return dmrircTemplate.Execute(file, data)
}

func linkBedpostX(bedpostxDir, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(bedpostxDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		source := filepath.Join(bedpostxDir, entry.Name())
		target := filepath.Join(targetDir, entry.Name())
		if err := os.Symlink(source, target); err != nil {
			return err
		}
	}
	return nil
}

// writeOutliers scans the stage logs for pathways flagged as outliers.
func writeOutliers(statDir, outlierFile string) error {
	logFiles, err := filepath.Glob(filepath.Join(statDir, "*.log"))
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	outliers := []string{}
	for _, path := range logFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, match := range outlierRegex.FindAllStringSubmatch(string(data), -1) {
			if !seen[match[1]] {
				seen[match[1]] = true
				outliers = append(outliers, match[1])
			}
		}
	}
	sort.Strings(outliers)

	payload, err := json.MarshalIndent(outliers, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(outlierFile, payload, 0o644)
}

func resolveSubjectsDir(subjectsDir string) (string, error) {
	if subjectsDir == "" {
		subjectsDir = os.Getenv("SUBJECTS_DIR")
	}
	if subjectsDir == "" {
		return "", fmt.Errorf(
			"no FreeSurfer subjects directory given and $SUBJECTS_DIR is not set")
	}
	info, err := os.Stat(subjectsDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("'%s' is not a valid subjects directory", subjectsDir)
	}
	return subjectsDir, nil
}
