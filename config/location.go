package config

import (
	"time"

	"github.com/dispatchlab/fieldops/core/location"
)

// LocationConfig bounds how old a technician ping may be before planning
// falls back to scheduled positions.
type LocationConfig struct {
	MaxAgeSeconds int `json:"max_age_seconds"`
}

func (c LocationConfig) MaxAge() time.Duration {
	if c.MaxAgeSeconds <= 0 {
		return location.DefaultMaxAge
	}
	return time.Duration(c.MaxAgeSeconds) * time.Second
}
