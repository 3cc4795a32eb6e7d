package config

import (
	"time"

	"github.com/dispatchlab/fieldops/core/factory"
	"github.com/dispatchlab/fieldops/core/travel"
)

// TravelConfig selects the road-time provider and tunes the straight-line
// fallback.
type TravelConfig struct {
	// Provider names the primary estimator module. An empty type runs
	// the fallback alone.
	Provider factory.ModuleConfig `json:"provider"`
	// TimeoutSeconds bounds one provider matrix call.
	TimeoutSeconds int `json:"timeout_seconds"`
	// FallbackSpeedKmh is the assumed road speed of the fallback.
	FallbackSpeedKmh float64 `json:"fallback_speed_kmh"`
	// CacheTTLSeconds keeps pairwise durations memoised. Zero disables
	// the cache.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

func (c TravelConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return travel.DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c TravelConfig) FallbackSpeed() float64 {
	if c.FallbackSpeedKmh <= 0 {
		return travel.DefaultSpeedKmh
	}
	return c.FallbackSpeedKmh
}

func (c TravelConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
