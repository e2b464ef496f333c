// Package conversions wraps the FreeSurfer utilities that move volumes,
// surfaces and registrations between the conformed and native spaces.
package conversions

import (
	"context"
	"fmt"
	"os"

	"github.com/neurospin/gofreesurfer/pkg/fswrap"
)

// Config carries the execution settings shared by every conversion call.
type Config struct {
	// FSConfig is the FreeSurfer setup script.
	FSConfig string
	// SubjectsDir overrides $SUBJECTS_DIR when set.
	SubjectsDir string
	Wrapper     fswrap.Options
}

// Run executes a FreeSurfer command within the configured environment.
func (c Config) Run(ctx context.Context, cmd []string) (*fswrap.Wrapper, error) {
	opts := c.Wrapper
	opts.Shfile = c.FSConfig
	if c.SubjectsDir != "" {
		opts.SubjectsDir = c.SubjectsDir
	}
	wrapper, err := fswrap.New(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := wrapper.Run(ctx); err != nil {
		return nil, err
	}
	return wrapper, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("'%s' is not a valid file", path)
	}
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("'%s' is not a valid directory", path)
	}
	return nil
}

func checkHemisphere(hemi string) error {
	if hemi != "lh" && hemi != "rh" {
		return fmt.Errorf("'%s' is not a valid hemisphere, expected 'lh' or 'rh'", hemi)
	}
	return nil
}

func checkSurface(name string) error {
	if name != "white" && name != "pial" {
		return fmt.Errorf("'%s' is not a valid surface, expected 'white' or 'pial'", name)
	}
	return nil
}

func checkIcoOrder(order int) error {
	if order < 0 || order > 7 {
		return fmt.Errorf("icosahedron order %d is not in the 0-7 range", order)
	}
	return nil
}
