package travel

import (
	"context"
	"errors"
	"time"

	"github.com/dispatchlab/fieldops/core/logger"
	"github.com/dispatchlab/fieldops/core/model"
)

// FallbackEstimator queries a primary provider with a bounded timeout and
// falls back to a secondary estimator when the provider fails or times out.
type FallbackEstimator struct {
	primary  Estimator
	fallback Estimator
	timeout  time.Duration
	log      logger.Logger
}

// NewFallbackEstimator wires a primary provider with a fallback. A nil
// primary routes every query to the fallback. A non-positive timeout falls
// back to DefaultTimeout.
func NewFallbackEstimator(primary, fallback Estimator, timeout time.Duration, log logger.Logger) *FallbackEstimator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FallbackEstimator{primary: primary, fallback: fallback, timeout: timeout, log: log}
}

func (f *FallbackEstimator) Matrix(ctx context.Context, origins, destinations []model.LatLng) (Matrix, error) {
	matrixRequests.Inc()
	if f.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		m, err := f.primary.Matrix(cctx, origins, destinations)
		cancel()
		if err == nil {
			return m, nil
		}
		f.log.Warnf("travel provider failed, using distance fallback: %v", err)
		fallbackTotal.Inc()
		m, ferr := f.fallback.Matrix(ctx, origins, destinations)
		if ferr != nil {
			return Matrix{}, errors.Join(err, ferr)
		}
		m.Degraded = true
		return m, nil
	}
	return f.fallback.Matrix(ctx, origins, destinations)
}
