package travel

import (
	"context"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// HaversineEstimator derives travel times from great-circle distances at a
// constant road speed. Its results are always marked degraded.
type HaversineEstimator struct {
	speedKmh float64
}

// NewHaversineEstimator returns an estimator assuming the given speed.
// Non-positive speeds fall back to DefaultSpeedKmh.
func NewHaversineEstimator(speedKmh float64) HaversineEstimator {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return HaversineEstimator{speedKmh: speedKmh}
}

func (e HaversineEstimator) Matrix(ctx context.Context, origins, destinations []model.LatLng) (Matrix, error) {
	if err := validatePoints(origins, destinations); err != nil {
		return Matrix{}, err
	}
	durations := make([][]time.Duration, len(origins))
	for i, o := range origins {
		row := make([]time.Duration, len(destinations))
		for j, d := range destinations {
			km := o.DistanceKm(d)
			row[j] = time.Duration(km / e.speedKmh * float64(time.Hour))
		}
		durations[i] = row
	}
	return Matrix{Durations: durations, Degraded: true}, nil
}
