// Package hcp drives the Human Connectome Project structural pipelines:
// PreFreeSurfer, FreeSurfer and PostFreeSurfer. The pipeline scripts are
// plain bash entry points that expect their options as key=value pairs and
// a merged FreeSurfer plus FSL environment.
package hcp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/neurospin/gofreesurfer/pkg/fswrap"
)

var wbVersionRegex = regexp.MustCompile(`Version: \d+\.\d+\.\d+`)

// Wrapper runs HCP pipeline scripts. The execution environment is built by
// sourcing the FreeSurfer and FSL setup scripts and layering the
// pipeline-specific variables (HCPPIPEDIR, CARET7DIR, ...) on top.
type Wrapper struct {
	Env map[string]string

	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// NewWrapper sources the FreeSurfer and FSL configurations and merges them
// with the pipeline environment.
func NewWrapper(pipelineEnv map[string]string, fsconfig, fslconfig string) (*Wrapper, error) {
	fsBase := map[string]string{}
	if home := os.Getenv("FREESURFER_HOME"); home != "" {
		fsBase["FREESURFER_HOME"] = home
	}
	fsEnv, err := fswrap.Environment(fsconfig, fsBase)
	if err != nil {
		return nil, fmt.Errorf("loading FreeSurfer configuration: %w", err)
	}

	fslEnv, err := fswrap.Environment(fslconfig, nil)
	if err != nil {
		return nil, fmt.Errorf("loading FSL configuration: %w", err)
	}

	env := fswrap.Concat(fswrap.Concat(fsEnv, fslEnv), pipelineEnv)
	return &Wrapper{Env: env}, nil
}

// Run executes an HCP pipeline command. The first element is the script
// path; the remainder alternates option names and values, which are joined
// into the name=value form the pipeline scripts expect.
func (w *Wrapper) Run(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty pipeline command")
	}
	if len(cmd)%2 != 1 {
		return fmt.Errorf("pipeline command '%s' has an option without a value", cmd[0])
	}

	if _, err := w.lookPath(cmd[0]); err != nil {
		return &fswrap.ConfigurationError{Tool: cmd[0]}
	}

	fcmd := []string{cmd[0]}
	for i := 1; i < len(cmd); i += 2 {
		fcmd = append(fcmd, fmt.Sprintf("%s=%s", cmd[i], cmd[i+1]))
	}

	process := exec.CommandContext(ctx, fcmd[0], fcmd[1:]...)
	process.Env = envList(w.Env)

	var stdout, stderr bytes.Buffer
	process.Stdout = &stdout
	process.Stderr = &stderr

	err := process.Run()
	w.Stdout = stdout.Bytes()
	w.Stderr = stderr.Bytes()
	w.ExitCode = process.ProcessState.ExitCode()

	if err != nil {
		return &fswrap.RuntimeError{
			Tool:     cmd[0],
			Args:     fcmd[1:],
			ExitCode: w.ExitCode,
			Output: strings.Join([]string{
				"STDOUT", "----", stdout.String(),
				"STDERR", "----", stderr.String()}, "\n"),
		}
	}
	return nil
}

// FreeSurferVersion reads the FreeSurfer release from build-stamp.txt, or
// returns "" when FreeSurfer is not configured.
func (w *Wrapper) FreeSurferVersion() string {
	home, ok := w.Env["FREESURFER_HOME"]
	if !ok {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(home, "build-stamp.txt"))
	if err != nil {
		return ""
	}
	return regexp.MustCompile(`\d+\.\d+\.\d+`).FindString(string(data))
}

// FSLVersion reads $FSLDIR/etc/fslversion, or returns "" when FSL is not
// configured.
func (w *Wrapper) FSLVersion() string {
	basedir, ok := w.Env["FSLDIR"]
	if !ok {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(basedir, "etc", "fslversion"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// HCPVersion reads $HCPPIPEDIR/version.txt, or returns "" when the HCP
// pipelines are not configured.
func (w *Wrapper) HCPVersion() string {
	basedir, ok := w.Env["HCPPIPEDIR"]
	if !ok {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(basedir, "version.txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WorkbenchVersion probes `wb_command -version`, or returns "" when the
// Connectome Workbench is not available.
func (w *Wrapper) WorkbenchVersion(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "wb_command", "-version")
	cmd.Env = envList(w.Env)
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	match := wbVersionRegex.FindString(string(out))
	return strings.TrimPrefix(match, "Version: ")
}

// GradunwarpVersion probes `gradient_unwarp.py -v`, which reports its
// version on stderr, or returns "" when gradunwarp is not available.
func (w *Wrapper) GradunwarpVersion(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "gradient_unwarp.py", "-v")
	cmd.Env = envList(w.Env)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(stderr.String())
}

func (w *Wrapper) lookPath(name string) (string, error) {
	if strings.Contains(name, string(os.PathSeparator)) {
		info, err := os.Stat(name)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			return "", fmt.Errorf("'%s' is not executable", name)
		}
		return name, nil
	}
	for _, dir := range filepath.SplitList(w.Env["PATH"]) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("'%s' not found in the tool PATH", name)
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for key, value := range env {
		list = append(list, key+"="+value)
	}
	return list
}
