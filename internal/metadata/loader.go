package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader loads a MultiDbConfig from some backing source. It is invoked
// once at startup; refresh policy is the caller's concern.
type Loader interface {
	Load() (*MultiDbConfig, error)
}

// FileLoader reads metadata from a YAML document on disk.
type FileLoader struct {
	Path string
}

// Load parses the YAML file into a MultiDbConfig. Structural integrity is
// checked later by NewRegistry, not here.
func (l *FileLoader) Load() (*MultiDbConfig, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading metadata file: %v", err)
	}
	var cfg MultiDbConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing metadata file %s: %v", l.Path, err)
	}
	return &cfg, nil
}

// StaticLoader serves a config that is already in memory. Used by tests
// and by embedders that manage configuration themselves.
type StaticLoader struct {
	Config *MultiDbConfig
}

func (l *StaticLoader) Load() (*MultiDbConfig, error) {
	if l.Config == nil {
		return nil, fmt.Errorf("static loader has no configuration")
	}
	return l.Config, nil
}
