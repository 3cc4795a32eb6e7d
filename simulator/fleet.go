package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// WorkforceConfig holds parameters for bulk workforce generation.
type WorkforceConfig struct {
	Tenant    string
	Size      int
	CenterLat float64
	CenterLng float64
	RadiusKm  float64
	Stops     int
}

// GenerateWorkforce creates Size technicians with IDs tech-0001..tech-NNNN.
// Each technician gets a random tour of Stops waypoints inside the service
// radius, unless tours carries an explicit tour for its ID.
func GenerateWorkforce(cfg WorkforceConfig, tours map[string][]Waypoint) []SimulatedTechnician {
	if cfg.Size <= 0 {
		return nil
	}
	ts := make([]SimulatedTechnician, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		id := fmt.Sprintf("tech-%04d", i+1)
		wps, ok := tours[id]
		if !ok {
			wps = make([]Waypoint, cfg.Stops+1)
			for j := range wps {
				wps[j] = randomPoint(cfg.CenterLat, cfg.CenterLng, cfg.RadiusKm)
			}
		}
		ts[i] = SimulatedTechnician{
			ID:        id,
			Tenant:    cfg.Tenant,
			Waypoints: wps,
			rng:       rand.New(rand.NewSource(fleetRng.Int63())),
		}
	}
	return ts
}

// randomPoint picks a uniform point inside the radius around the center.
func randomPoint(lat, lng, radiusKm float64) Waypoint {
	r := radiusKm * math.Sqrt(fleetRng.Float64())
	theta := 2 * math.Pi * fleetRng.Float64()
	dLat := r * math.Cos(theta) / kmPerDegree
	dLng := r * math.Sin(theta) / (kmPerDegree * math.Cos(lat*math.Pi/180))
	return Waypoint{Lat: lat + dLat, Lng: lng + dLng}
}

// LoadTours reads per-technician tour overrides from JSON, keyed by
// technician id.
func LoadTours(data []byte) (map[string][]Waypoint, error) {
	var m map[string][]Waypoint
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for id, wps := range m {
		if len(wps) == 0 {
			return nil, fmt.Errorf("tour for %s is empty", id)
		}
	}
	return m, nil
}
