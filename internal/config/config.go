// Package config loads optional on-disk defaults for flags the operator
// didn't pass on the command line. Modeled on the teacher's own
// internal/config: a YAML file that need not exist (absence is not an
// error), resolved through an env var override with a fixed fallback.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvDir, when set, overrides the default config directory.
const EnvDir = "TERMBROKER_CONFIG_DIR"

// Config holds the fallback values applied when a flag is not passed on
// the command line.
type Config struct {
	Replay      bool   `yaml:"replay"`
	Verbose     bool   `yaml:"verbose"`
	Quiet       bool   `yaml:"quiet"`
	Daemonize   bool   `yaml:"daemonize"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Dir returns the directory termbroker reads its config file from:
// $TERMBROKER_CONFIG_DIR if set, otherwise ~/.termbroker.
func Dir() string {
	if d := os.Getenv(EnvDir); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".termbroker"
	}
	return filepath.Join(home, ".termbroker")
}

// Load reads config.yaml from Dir(). A missing file is not an error: it
// yields a zero-value Config, so every flag's own default wins.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads a config file from an explicit path; Load calls it with
// the default location, and tests call it directly.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
