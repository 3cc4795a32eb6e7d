package config

import (
	"fmt"
	"time"
)

// RunStoreConfig defines run history storage and retention.
type RunStoreConfig struct {
	// Backend selects the store type: "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `json:"path"`
	// RetentionDays removes run records older than this many days.
	RetentionDays int `json:"retention_days"`
}

// SetDefaults applies sane defaults.
func (c *RunStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
}

// Validate checks mandatory fields.
func (c RunStoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend == "sqlite" && c.Path == "" {
		return fmt.Errorf("path is required for sqlite backend")
	}
	return nil
}

// Retention returns the record-keeping window.
func (c RunStoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
