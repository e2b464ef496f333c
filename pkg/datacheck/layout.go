package datacheck

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadLayout reads a YAML file mapping subject subfolders to expected file
// counts, overriding the reference layout entry by entry. Paths use forward
// slashes, e.g.:
//
//	mri/transforms: 14
//	convert: 30
func LoadLayout(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overrides map[string]int
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("bad layout file '%s': %w", path, err)
	}

	layout := expectedLayout()
	for dir, count := range overrides {
		if count < 0 {
			return nil, fmt.Errorf("bad layout file '%s': negative count for '%s'", path, dir)
		}
		layout[filepath.FromSlash(dir)] = count
	}
	return layout, nil
}
