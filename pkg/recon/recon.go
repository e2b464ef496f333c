// Package recon wraps the FreeSurfer cortical reconstruction entry point.
package recon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neurospin/gofreesurfer/pkg/fswrap"
)

// Options parametrizes a full cortical reconstruction run.
type Options struct {
	// FSDir is the FreeSurfer working directory holding all subjects.
	FSDir string
	// AnatFile is the anatomical image to segment.
	AnatFile string
	// SubjectID identifies the subject under FSDir.
	SubjectID string
	// FSConfig is the FreeSurfer setup script.
	FSConfig string
	// Erase removes a pre-existing subject folder before starting.
	// recon-all refuses to reprocess a populated subject directory.
	Erase bool

	Wrapper fswrap.Options
}

// All runs `recon-all -all` on the anatomical image and returns the subject
// segmentation directory.
func All(ctx context.Context, opts Options) (string, error) {
	info, err := os.Stat(opts.FSDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("'%s' is not a valid FreeSurfer home directory", opts.FSDir)
	}
	if _, err := os.Stat(opts.AnatFile); err != nil {
		return "", fmt.Errorf("'%s' is not a valid anatomical file: %w", opts.AnatFile, err)
	}
	if opts.SubjectID == "" {
		return "", fmt.Errorf("missing subject identifier")
	}

	subjDir := filepath.Join(opts.FSDir, opts.SubjectID)
	if opts.Erase {
		if err := os.RemoveAll(subjDir); err != nil {
			return "", fmt.Errorf("cleaning subject folder '%s': %w", subjDir, err)
		}
	}

	cmd := []string{
		"recon-all", "-all",
		"-subjid", opts.SubjectID,
		"-i", opts.AnatFile,
		"-sd", opts.FSDir,
	}
	wopts := opts.Wrapper
	wopts.Shfile = opts.FSConfig
	wrapper, err := fswrap.New(cmd, wopts)
	if err != nil {
		return "", err
	}
	if err := wrapper.Run(ctx); err != nil {
		return "", err
	}
	return subjDir, nil
}
