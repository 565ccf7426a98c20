package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, defaults are applied and the result validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./autoloop.yaml, ~/.autoloop/config.yaml.
// When no file exists, the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"autoloop.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".autoloop", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tracker.Command == "" {
		cfg.Tracker.Command = "beans"
	}
	if cfg.Tracker.Tag == "" {
		cfg.Tracker.Tag = "autoloop"
	}
	if cfg.Agent.Command == "" {
		cfg.Agent.Command = "claude"
	}
	if cfg.Loop.MaxNoProgress == 0 {
		cfg.Loop.MaxNoProgress = 5
	}
	if cfg.Loop.StartHour == 0 && cfg.Loop.EndHour == 0 {
		cfg.Loop.StartHour = 22
		cfg.Loop.EndHour = 8
	}
	if cfg.Web.Host == "" {
		cfg.Web.Host = "0.0.0.0"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Whiteboard == "" {
		cfg.Whiteboard = "WHITEBOARD.md"
	}
}
