package logging

import (
	"fmt"
)

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File receives a JSON copy of every entry when set.
	File   string            `koanf:"file"`
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns the defaults used by the CLI.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "console",
		Fields: map[string]string{
			"service": "ladybug",
		},
	}
}

// Validate checks the format and level.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid format %q: must be json or console", c.Format)
	}
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q", c.Level)
	}
	return nil
}
