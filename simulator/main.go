package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var tours map[string][]Waypoint
	var err error
	if cfg.ToursFile != "" {
		tours, err = readToursFile(cfg.ToursFile)
		if err != nil {
			log.Fatalf("tours file: %v", err)
		}
	}

	techs := GenerateWorkforce(WorkforceConfig{
		Tenant:    cfg.Tenant,
		Size:      cfg.Count,
		CenterLat: cfg.CenterLat,
		CenterLng: cfg.CenterLng,
		RadiusKm:  cfg.RadiusKm,
		Stops:     cfg.Stops,
	}, tours)
	runTechnicians(ctx, techs, cfg)
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.Tenant, "tenant", "demo", "tenant id stamped on reports")
	flag.IntVar(&cfg.Count, "count", 1, "number of technicians")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "position report interval")
	flag.Float64Var(&cfg.SpeedKmh, "speed-kmh", 40, "movement speed")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "report drop probability, simulates dead zones")
	flag.Float64Var(&cfg.CenterLat, "center-lat", 48.8566, "service area center latitude")
	flag.Float64Var(&cfg.CenterLng, "center-lng", 2.3522, "service area center longitude")
	flag.Float64Var(&cfg.RadiusKm, "radius-km", 15, "service area radius")
	flag.IntVar(&cfg.Stops, "stops", 6, "stops per technician tour")
	flag.StringVar(&cfg.ToursFile, "tours-file", "", "per-technician tour overrides JSON")
	flag.DurationVar(&cfg.Duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}

func readToursFile(path string) (map[string][]Waypoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadTours(data)
}

func runTechnicians(ctx context.Context, techs []SimulatedTechnician, cfg Config) {
	var wg sync.WaitGroup
	for i := range techs {
		t := &techs[i]
		t.Broker = cfg.Broker
		t.SpeedKmh = cfg.SpeedKmh
		t.Interval = cfg.Interval
		t.DropRate = cfg.DropRate
		wg.Add(1)
		go func(t *SimulatedTechnician) {
			defer wg.Done()
			if err := t.Run(ctx); err != nil {
				log.Printf("%s: %v", t.ID, err)
			}
		}(t)
	}
	wg.Wait()
}
