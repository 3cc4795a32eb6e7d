// Package travel estimates drive times between plan coordinates. Providers
// are pluggable; a straight-line fallback keeps the optimizer running when no
// provider is reachable.
package travel

import (
	"context"
	"fmt"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

const (
	// DefaultSpeedKmh is the assumed road speed for the distance fallback.
	DefaultSpeedKmh = 40.0
	// DefaultTimeout bounds one provider matrix call.
	DefaultTimeout = 5 * time.Second
)

// Matrix holds travel durations indexed [origin][destination].
type Matrix struct {
	Durations [][]time.Duration
	// Degraded is true when the durations come from the straight-line
	// fallback rather than a road-aware provider.
	Degraded bool
}

// At returns the duration from origin i to destination j.
func (m Matrix) At(i, j int) time.Duration {
	return m.Durations[i][j]
}

// Estimator answers batched travel time queries.
type Estimator interface {
	// Matrix returns travel durations from every origin to every
	// destination in one call.
	Matrix(ctx context.Context, origins, destinations []model.LatLng) (Matrix, error)
}

func validatePoints(origins, destinations []model.LatLng) error {
	if len(origins) == 0 || len(destinations) == 0 {
		return fmt.Errorf("travel: empty origin or destination set")
	}
	return nil
}
