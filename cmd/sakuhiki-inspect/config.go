package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the inspect command, loaded from
// sakuhiki-inspect.yaml if present.
type Config struct {
	// DataDir is the badgerkv database directory to open read-only.
	DataDir string `yaml:"dataDir"`
}

// LoadConfig searches for sakuhiki-inspect.yaml starting from the
// current directory and walking up to the filesystem root. Returns a
// zero Config if none is found.
func LoadConfig() Config {
	var cfg Config

	path := findConfigFile()
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "sakuhiki-inspect.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
