package travel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

const cacheSweepThreshold = 8192

// CachingEstimator memoises pairwise durations from a wrapped estimator.
// A query is served from cache only when every requested pair is fresh;
// otherwise the full matrix is fetched and the cache refreshed.
type CachingEstimator struct {
	next Estimator
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	d        time.Duration
	degraded bool
	at       time.Time
}

// NewCachingEstimator wraps next with a TTL cache on coordinate pairs.
func NewCachingEstimator(next Estimator, ttl time.Duration) *CachingEstimator {
	return &CachingEstimator{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func pairKey(o, d model.LatLng) string {
	// Quantized to ~1m so repeated float conversions hash identically.
	return fmt.Sprintf("%.5f,%.5f>%.5f,%.5f", o.Lat, o.Lng, d.Lat, d.Lng)
}

func (c *CachingEstimator) Matrix(ctx context.Context, origins, destinations []model.LatLng) (Matrix, error) {
	if err := validatePoints(origins, destinations); err != nil {
		return Matrix{}, err
	}
	if m, ok := c.lookup(origins, destinations); ok {
		cacheHits.Inc()
		return m, nil
	}
	m, err := c.next.Matrix(ctx, origins, destinations)
	if err != nil {
		return Matrix{}, err
	}
	c.store(origins, destinations, m)
	return m, nil
}

func (c *CachingEstimator) lookup(origins, destinations []model.LatLng) (Matrix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	durations := make([][]time.Duration, len(origins))
	degraded := false
	for i, o := range origins {
		row := make([]time.Duration, len(destinations))
		for j, d := range destinations {
			e, ok := c.entries[pairKey(o, d)]
			if !ok || now.Sub(e.at) > c.ttl {
				return Matrix{}, false
			}
			row[j] = e.d
			degraded = degraded || e.degraded
		}
		durations[i] = row
	}
	return Matrix{Durations: durations, Degraded: degraded}, true
}

func (c *CachingEstimator) store(origins, destinations []model.LatLng, m Matrix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) > cacheSweepThreshold {
		for k, e := range c.entries {
			if now.Sub(e.at) > c.ttl {
				delete(c.entries, k)
			}
		}
	}
	for i, o := range origins {
		for j, d := range destinations {
			c.entries[pairKey(o, d)] = cacheEntry{d: m.Durations[i][j], degraded: m.Degraded, at: now}
		}
	}
}
