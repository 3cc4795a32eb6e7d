package config

import (
	"fmt"
)

// LoggingConfig controls the process-wide log output.
type LoggingConfig struct {
	// Level is the minimum level to emit: "debug", "info", "warn" or
	// "error".
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}
