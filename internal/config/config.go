// Package config loads the run configuration: pool sizing, REPL history
// location, and the per-evaluation timeout.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the fully validated run configuration.
type Config struct {
	// Workers is the pool size. Zero means one worker per CPU.
	Workers int `yaml:"workers"`

	// HistoryFile is where the REPL persists line history.
	HistoryFile string `yaml:"history_file"`

	// EvalTimeout bounds each evaluation; zero disables the bound.
	EvalTimeout Duration `yaml:"eval_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{HistoryFile: defaultHistoryPath()}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stackpool_history"
	}
	return filepath.Join(home, ".stackpool_history")
}

// Load reads and validates a YAML configuration file. Unknown fields are
// rejected so typos fail loudly instead of silently using defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.EvalTimeout < 0 {
		return errors.New("eval_timeout must not be negative")
	}
	return nil
}
