package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
)

// ReadFile reads a yamlgate.yaml file.
func ReadFile(p string) (*Config, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find looks for a yamlgate.yaml in dir and each of its parents. It returns
// nil if none exists.
func Find(dir string) (*Config, error) {
	wd := filepath.Clean(dir)
	for {
		cfg, err := ReadFile(filepath.Join(wd, FileName))
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return nil, nil
}

// Marshal renders cfg as yaml, for --print-config.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
