package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// kmPerDegree approximates one degree of latitude in kilometres.
const kmPerDegree = 111.19

// Waypoint is one stop of a technician's simulated day.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SimulatedTechnician walks its waypoints and reports positions over MQTT.
// The first waypoint is the starting position; the rest form the tour.
type SimulatedTechnician struct {
	ID        string
	Tenant    string
	Broker    string
	Waypoints []Waypoint
	SpeedKmh  float64
	Interval  time.Duration
	DropRate  float64

	client  paho.Client
	rng     *rand.Rand
	lat     float64
	lng     float64
	next    int
	notices atomic.Int64
}

// Run connects to the broker, subscribes to the technician's notice topic
// and publishes position reports until ctx is done.
func (s *SimulatedTechnician) Run(ctx context.Context) error {
	cli, err := newMQTTClient(s.Broker, "sim-"+s.ID)
	if err != nil {
		return fmt.Errorf("%s: connect: %w", s.ID, err)
	}
	s.client = cli
	defer cli.Disconnect(250)

	topic := fmt.Sprintf("fieldops/technician/%s/notice", s.ID)
	if token := cli.Subscribe(topic, 1, s.onNotice); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s: subscribe: %w", s.ID, token.Error())
	}

	if len(s.Waypoints) == 0 {
		<-ctx.Done()
		return nil
	}
	s.lat, s.lng = s.Waypoints[0].Lat, s.Waypoints[0].Lng
	s.next = 1
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: done, %d notices received", s.ID, s.notices.Load())
			return nil
		case <-ticker.C:
			s.advance(s.Interval)
			if s.DropRate > 0 && s.rng.Float64() < s.DropRate {
				continue
			}
			if err := s.report(); err != nil {
				log.Printf("%s: report: %v", s.ID, err)
			}
		}
	}
}

// advance moves the technician toward the next waypoint at road speed.
func (s *SimulatedTechnician) advance(dt time.Duration) {
	if s.next >= len(s.Waypoints) {
		return
	}
	target := s.Waypoints[s.next]
	stepKm := s.SpeedKmh * dt.Hours()
	dLat := (target.Lat - s.lat) * kmPerDegree
	dLng := (target.Lng - s.lng) * kmPerDegree * math.Cos(s.lat*math.Pi/180)
	dist := math.Hypot(dLat, dLng)
	if dist <= stepKm {
		s.lat, s.lng = target.Lat, target.Lng
		s.next++
		return
	}
	frac := stepKm / dist
	s.lat += (target.Lat - s.lat) * frac
	s.lng += (target.Lng - s.lng) * frac
}

// report publishes the current position in the gateway's location format.
func (s *SimulatedTechnician) report() error {
	status := "en_route"
	if s.next >= len(s.Waypoints) {
		status = "on_site"
	}
	payload, err := json.Marshal(map[string]any{
		"technician_id": s.ID,
		"tenant_id":     s.Tenant,
		"lat":           s.lat,
		"lon":           s.lng,
		"status":        status,
		"ts":            time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("fieldops/technician/%s/location", s.ID)
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (s *SimulatedTechnician) onNotice(_ paho.Client, msg paho.Message) {
	var m struct {
		Message     string   `json:"message"`
		ChangedJobs []string `json:"changed_jobs"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode notice: %v", s.ID, err)
		return
	}
	s.notices.Add(1)
	log.Printf("%s: notice: %s (%d jobs changed)", s.ID, m.Message, len(m.ChangedJobs))
}
