package config

import (
	"fmt"
	"time"
)

// WeatherConfig points at the advisory endpoint consulted while scoping
// weather disruptions.
type WeatherConfig struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c WeatherConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks mandatory fields.
func (c WeatherConfig) Validate() error {
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("weather url is required when enabled")
	}
	return nil
}
