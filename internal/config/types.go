// Package config loads the loop configuration from YAML.
package config

// Config is the top-level configuration.
type Config struct {
	Tracker   TrackerConfig   `yaml:"tracker"`
	Agent     AgentConfig     `yaml:"agent"`
	Loop      LoopConfig      `yaml:"loop"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	History   HistoryConfig   `yaml:"history"`
	Web       WebConfig       `yaml:"web"`

	// Whiteboard is the shared scratch file referenced by every instruction.
	Whiteboard string `yaml:"whiteboard"`
}

// TrackerConfig points at the external task tracker CLI.
type TrackerConfig struct {
	Command string `yaml:"command"`
	Tag     string `yaml:"tag"`
}

// AgentConfig points at the coding-agent CLI.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LoopConfig holds scheduling defaults overridable per run from the CLI.
type LoopConfig struct {
	MaxNoProgress int  `yaml:"max_no_progress"`
	StartHour     int  `yaml:"start_hour"`
	EndHour       int  `yaml:"end_hour"`
	EnforceHours  bool `yaml:"enforce_hours"`
	WaitForWindow bool `yaml:"wait_for_time_band"`
}

// RateLimitConfig extends the built-in throttling patterns.
type RateLimitConfig struct {
	Patterns []string `yaml:"patterns"`
}

// HistoryConfig locates the iteration history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// WebConfig binds the control server.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}
