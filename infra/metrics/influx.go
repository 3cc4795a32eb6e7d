package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/infra/logger"
)

// InfluxSink writes scheduling events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.RunSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes the run summary as a line protocol point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("tenant", ev.TenantID).
		AddTag("run_id", ev.RunID).
		AddTag("trigger", string(ev.Trigger)).
		AddTag("status", string(ev.Status)).
		AddTag("degraded", strconv.FormatBool(ev.Degraded)).
		AddField("jobs", ev.Jobs).
		AddField("technicians", ev.Technicians).
		AddField("assigned", ev.Assigned).
		AddField("unassigned", ev.Unassigned).
		AddField("objective", round3(ev.Objective)).
		AddField("confidence", round3(ev.Confidence)).
		AddField("elapsed_ms", round3(float64(ev.Elapsed)/float64(time.Millisecond))).
		AddField("timed_out", ev.TimedOut).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAdaptation writes a disruption repair outcome.
func (s *InfluxSink) RecordAdaptation(ev coremetrics.AdaptationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("plan_adaptation").
		AddTag("tenant", ev.TenantID).
		AddTag("disruption_id", ev.DisruptionID).
		AddTag("type", string(ev.Type)).
		AddTag("severity", string(ev.Severity)).
		AddTag("state", string(ev.State)).
		AddField("impact", round3(ev.Impact)).
		AddField("reassignments", ev.Reassignments).
		AddField("max_delay_ms", round3(float64(ev.MaxDelay)/float64(time.Millisecond))).
		AddField("affected_stops", ev.Affected).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLocationUpdate writes a technician position report.
func (s *InfluxSink) RecordLocationUpdate(ev coremetrics.LocationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("technician_location").
		AddTag("tenant", ev.TenantID).
		AddTag("technician_id", ev.TechnicianID)
	if ev.Status != "" {
		p = p.AddTag("status", ev.Status)
	}
	p = p.AddField("lat", ev.Position.Lat).
		AddField("lon", ev.Position.Lng).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordNotice writes a notice delivery attempt.
func (s *InfluxSink) RecordNotice(ev coremetrics.NoticeEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("technician_notice").
		AddTag("tenant", ev.TenantID).
		AddTag("technician_id", ev.TechnicianID).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("attempts", ev.Attempts).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
