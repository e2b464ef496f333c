package fswrap

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a wrapped binary that cannot be located in the
// configured tool environment.
type ConfigurationError struct {
	Tool string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("FreeSurfer command '%s' not found in the configured environment", e.Tool)
}

// RuntimeError reports a wrapped binary that started but exited nonzero.
// The combined stdout/stderr is carried so failures are diagnosable from the
// provenance logs alone.
type RuntimeError struct {
	Tool     string
	Args     []string
	ExitCode int
	Output   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("FreeSurfer call for '%s' failed (exit %d), with parameters: '%s'. Error: %s",
		e.Tool, e.ExitCode, strings.Join(e.Args, " "), e.Output)
}
