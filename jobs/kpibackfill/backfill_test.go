package kpibackfill

import (
	"errors"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/runstore"
)

type captureSink struct {
	events []metrics.RunEvent
	err    error
}

func (c *captureSink) RecordRun(ev metrics.RunEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func history() []runstore.Record {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return []runstore.Record{
		{
			Run: model.Run{
				ID: "run-1", TenantID: "acme", Trigger: model.TriggerBatch,
				Status: model.RunCompleted, StartedAt: start,
				FinishedAt: start.Add(2 * time.Second),
				Jobs:       10, Technicians: 3, Assigned: 9, Unassigned: 1,
				Objective: 0.42,
			},
			Plan: model.Plan{RunID: "run-1", Confidence: 0.8, Degraded: true},
		},
		{
			// Still running, must be skipped.
			Run:  model.Run{ID: "run-2", TenantID: "acme", Status: model.RunRunning, StartedAt: start},
			Plan: model.Plan{RunID: "run-2"},
		},
	}
}

func TestBackfillReplaysFinishedRuns(t *testing.T) {
	sink := &captureSink{}
	n, err := Backfill(sink, history())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 replayed run, got %d", n)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.RunID != "run-1" || ev.TenantID != "acme" {
		t.Fatalf("unexpected identity: %+v", ev)
	}
	if ev.Assigned != 9 || ev.Unassigned != 1 {
		t.Fatalf("counts not carried: %+v", ev)
	}
	if ev.Confidence != 0.8 || !ev.Degraded {
		t.Fatalf("plan fields not carried: %+v", ev)
	}
	if ev.Elapsed != 2*time.Second {
		t.Fatalf("expected 2s elapsed, got %v", ev.Elapsed)
	}
}

func TestBackfillStopsOnSinkError(t *testing.T) {
	sink := &captureSink{err: errors.New("down")}
	n, err := Backfill(sink, history())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 0 {
		t.Fatalf("expected 0 replayed, got %d", n)
	}
}
