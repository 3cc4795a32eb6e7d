package metrics

import (
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// RunEvent summarises one finished optimization run.
type RunEvent struct {
	RunID       string
	TenantID    string
	Trigger     model.RunTrigger
	Status      model.RunStatus
	Jobs        int
	Technicians int
	Assigned    int
	Unassigned  int
	Objective   float64
	Confidence  float64
	Degraded    bool
	TimedOut    bool
	Elapsed     time.Duration
	Time        time.Time
}

// RunSink records run results for observability purposes.
type RunSink interface {
	RecordRun(ev RunEvent) error
}

// AdaptationEvent captures the outcome of one disruption repair.
type AdaptationEvent struct {
	DisruptionID  string
	TenantID      string
	Type          model.DisruptionType
	Severity      model.DisruptionSeverity
	State         model.DisruptionState
	Impact        float64
	Reassignments int
	MaxDelay      time.Duration
	Affected      int
	Elapsed       time.Duration
	Time          time.Time
}

// AdaptationRecorder records disruption adaptation outcomes.
type AdaptationRecorder interface {
	RecordAdaptation(ev AdaptationEvent) error
}

// LocationEvent records a technician position report.
type LocationEvent struct {
	TenantID     string
	TechnicianID string
	Position     model.LatLng
	Status       string
	Time         time.Time
}

// LocationRecorder records technician location updates.
type LocationRecorder interface {
	RecordLocationUpdate(ev LocationEvent) error
}

// NoticeEvent captures a schedule-change notice delivery attempt.
type NoticeEvent struct {
	TenantID     string
	TechnicianID string
	DisruptionID string
	Delivered    bool
	Attempts     int
	Time         time.Time
}

// NoticeRecorder records notice delivery attempts.
type NoticeRecorder interface {
	RecordNotice(ev NoticeEvent) error
}

// NopSink implements RunSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error { return nil }

func (NopSink) RecordAdaptation(AdaptationEvent) error   { return nil }
func (NopSink) RecordLocationUpdate(LocationEvent) error { return nil }
func (NopSink) RecordNotice(NoticeEvent) error           { return nil }
