package fswrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/neurospin/gofreesurfer/pkg/logging"
)

// SupportedRelease is the FreeSurfer release the wrappers are validated
// against. Other releases run with a warning.
const SupportedRelease = "5.3.0"

// configuredEnvVar caches the parsed FreeSurfer environment across
// invocations so the setup script is not sourced once per wrapped call.
const configuredEnvVar = "FREESURFER_CONFIGURED"

var versionRegex = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Options controls how the FreeSurfer environment is assembled for a call.
type Options struct {
	// Shfile is the path to the FreeSurfer setup script
	// (SetUpFreeSurfer.sh). Required.
	Shfile string
	// Env is an extra environment merged on top of the FreeSurfer one,
	// e.g. the caller's environment.
	Env map[string]string
	// SubjectsDir sets $SUBJECTS_DIR for the call. When empty the value is
	// inherited from the process environment if present.
	SubjectsDir string
	// AddFSLEnv activates the FSL environment, required for commands like
	// bbregister and trac-all.
	AddFSLEnv bool
	// FSLShfile is the FSL setup script, used when AddFSLEnv is set.
	FSLShfile string
	// Logger receives configuration warnings. Optional.
	Logger *logging.Logger
}

// Wrapper runs a single FreeSurfer command inside the environment assembled
// from the tool setup script.
type Wrapper struct {
	cmd []string

	// Version is the FreeSurfer release detected from build-stamp.txt.
	Version string
	// Env is the fully assembled environment the command runs in.
	Env map[string]string

	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// New assembles the FreeSurfer environment and validates the installed
// release. The command is not executed until Run is called.
func New(cmd []string, opts Options) (*Wrapper, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("empty FreeSurfer command")
	}

	w := &Wrapper{cmd: cmd}

	env, err := configuredEnvironment(opts.Shfile)
	if err != nil {
		return nil, err
	}
	w.Env = env

	if err := w.checkVersion(opts.Logger); err != nil {
		return nil, err
	}

	if opts.Env != nil {
		w.Env = Concat(w.Env, opts.Env)
	}

	if opts.AddFSLEnv {
		if opts.FSLShfile == "" {
			return nil, fmt.Errorf("FSL environment requested but no FSL setup script given")
		}
		fslEnv, err := Environment(opts.FSLShfile, nil)
		if err != nil {
			return nil, err
		}
		w.Env = Concat(w.Env, fslEnv)
	}

	switch {
	case opts.SubjectsDir != "":
		w.Env["SUBJECTS_DIR"] = opts.SubjectsDir
	case os.Getenv("SUBJECTS_DIR") != "":
		w.Env["SUBJECTS_DIR"] = os.Getenv("SUBJECTS_DIR")
	}

	// tkmedit needs the display of the calling session.
	if cmd[0] == "tkmedit" && os.Getenv("DISPLAY") != "" {
		w.Env["DISPLAY"] = os.Getenv("DISPLAY")
	}

	return w, nil
}

// Run executes the wrapped command, capturing stdout, stderr and the exit
// code. The binary is first resolved within the tool environment so a
// missing FreeSurfer installation surfaces as a ConfigurationError rather
// than an opaque exec failure.
func (w *Wrapper) Run(ctx context.Context) error {
	path, err := lookPath(w.cmd[0], w.Env)
	if err != nil {
		return &ConfigurationError{Tool: w.cmd[0]}
	}

	cmd := exec.CommandContext(ctx, path, w.cmd[1:]...)
	cmd.Env = flatten(w.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	w.Stdout = stdout.Bytes()
	w.Stderr = stderr.Bytes()
	w.ExitCode = cmd.ProcessState.ExitCode()

	if err != nil {
		return &RuntimeError{
			Tool:     w.cmd[0],
			Args:     w.cmd[1:],
			ExitCode: w.ExitCode,
			Output:   strings.TrimSpace(stderr.String() + stdout.String()),
		}
	}
	return nil
}

// Command returns the wrapped command line.
func (w *Wrapper) Command() []string {
	return w.cmd
}

// checkVersion reads the FreeSurfer release from
// $FREESURFER_HOME/build-stamp.txt and records it on the wrapper.
func (w *Wrapper) checkVersion(logger *logging.Logger) error {
	home, ok := w.Env["FREESURFER_HOME"]
	if !ok {
		return fmt.Errorf("the configured environment does not define FREESURFER_HOME")
	}

	versionFile := filepath.Join(home, "build-stamp.txt")
	data, err := os.ReadFile(versionFile)
	if err != nil {
		return fmt.Errorf("can't read FreeSurfer version file '%s': %w", versionFile, err)
	}

	matches := versionRegex.FindAllString(string(data), -1)
	if len(matches) != 1 {
		return fmt.Errorf("can't detect the FreeSurfer version from version file '%s'", versionFile)
	}
	w.Version = matches[0]

	if w.Version != SupportedRelease && logger != nil {
		logger.Warn("installed FreeSurfer release is untested", map[string]interface{}{
			"installed": w.Version,
			"supported": SupportedRelease,
		})
	}
	return nil
}

// configuredEnvironment returns the FreeSurfer environment, sourcing the
// setup script on first use and caching the result in the process
// environment for subsequent wrapped calls.
func configuredEnvironment(shfile string) (map[string]string, error) {
	if cached := os.Getenv(configuredEnvVar); cached != "" {
		env := make(map[string]string)
		if err := json.Unmarshal([]byte(cached), &env); err == nil {
			return env, nil
		}
		// A corrupt cache falls through to a fresh parse.
	}

	base := map[string]string{}
	if home := os.Getenv("FREESURFER_HOME"); home != "" {
		base["FREESURFER_HOME"] = home
	}

	env, err := Environment(shfile, base)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(env); err == nil {
		os.Setenv(configuredEnvVar, string(data))
	}
	return env, nil
}

// lookPath resolves a binary within the wrapped environment's PATH instead
// of the caller's.
func lookPath(name string, env map[string]string) (string, error) {
	if strings.Contains(name, string(os.PathSeparator)) {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("'%s' is not executable", name)
	}

	for _, dir := range filepath.SplitList(env["PATH"]) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("'%s' not found in the tool PATH", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
