package config

import (
	"fmt"
	"regexp"
)

// Validate checks the configuration for values that would break the loop at
// runtime. It is called by Load; construct-by-hand callers should call it
// themselves.
func (c *Config) Validate() error {
	if c.Loop.StartHour < 0 || c.Loop.StartHour > 23 {
		return fmt.Errorf("loop.start_hour %d out of range 0-23", c.Loop.StartHour)
	}
	if c.Loop.EndHour < 0 || c.Loop.EndHour > 24 {
		return fmt.Errorf("loop.end_hour %d out of range 0-24", c.Loop.EndHour)
	}
	if c.Loop.MaxNoProgress < 1 {
		return fmt.Errorf("loop.max_no_progress must be at least 1, got %d", c.Loop.MaxNoProgress)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	for _, p := range c.RateLimit.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("rate_limit pattern %q: %w", p, err)
		}
	}
	return nil
}
