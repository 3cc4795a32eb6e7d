package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker    string
	Tenant    string
	Count     int
	Interval  time.Duration
	SpeedKmh  float64
	DropRate  float64
	CenterLat float64
	CenterLng float64
	RadiusKm  float64
	Stops     int
	ToursFile string
	Duration  time.Duration
	Verbose   bool
}

// Validate checks flag combinations before the workforce starts.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.SpeedKmh <= 0 {
		return fmt.Errorf("speed must be positive")
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("drop rate must be in [0,1)")
	}
	if c.RadiusKm <= 0 {
		return fmt.Errorf("radius must be positive")
	}
	if c.Stops <= 0 {
		return fmt.Errorf("stops must be positive")
	}
	return nil
}
