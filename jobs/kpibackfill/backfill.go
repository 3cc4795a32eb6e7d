// Package kpibackfill replays stored run history into a metrics sink.
// It is used when a metrics backend is introduced, or re-provisioned,
// after the service has already accumulated run records.
package kpibackfill

import (
	"github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/runstore"
)

// Backfill replays finished runs into the sink and returns how many
// were replayed. Records still in the running state are skipped.
func Backfill(sink metrics.RunSink, history []runstore.Record) (int, error) {
	n := 0
	for _, rec := range history {
		if rec.Run.FinishedAt.IsZero() {
			continue
		}
		ev := metrics.RunEvent{
			RunID:       rec.Run.ID,
			TenantID:    rec.Run.TenantID,
			Trigger:     rec.Run.Trigger,
			Status:      rec.Run.Status,
			Jobs:        rec.Run.Jobs,
			Technicians: rec.Run.Technicians,
			Assigned:    rec.Run.Assigned,
			Unassigned:  rec.Run.Unassigned,
			Objective:   rec.Run.Objective,
			Confidence:  rec.Plan.Confidence,
			Degraded:    rec.Plan.Degraded,
			TimedOut:    rec.Plan.TimedOut,
			Elapsed:     rec.Run.Elapsed(),
			Time:        rec.Run.FinishedAt,
		}
		if err := sink.RecordRun(ev); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
