package model

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate lies within valid WGS84 bounds.
func (p LatLng) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %f out of range", p.Lng)
	}
	return nil
}

// DistanceKm returns the great-circle distance to q in kilometres.
func (p LatLng) DistanceKm(q LatLng) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLng := (q.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Area is a circular region used to scope disruptions geographically.
type Area struct {
	Center   LatLng  `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

// Contains reports whether p lies inside the area.
func (a Area) Contains(p LatLng) bool {
	return a.Center.DistanceKm(p) <= a.RadiusKm
}

// TimeWindow is a half-open interval [Start, End) in which an activity may
// begin.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the window is unset.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Validate checks that the window is ordered.
func (w TimeWindow) Validate() error {
	if w.IsZero() {
		return fmt.Errorf("time window is empty")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("time window end %s not after start %s", w.End, w.Start)
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether the two windows share any instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
