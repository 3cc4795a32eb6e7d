package model

import (
	"fmt"
	"time"
)

// DisruptionType identifies the kind of mid-day event being reported.
type DisruptionType string

const (
	DisruptionTrafficDelay        DisruptionType = "traffic_delay"
	DisruptionWeather             DisruptionType = "weather"
	DisruptionEmergencyInsertion  DisruptionType = "emergency_insertion"
	DisruptionResourceUnavailable DisruptionType = "resource_unavailable"
	DisruptionCustomerReschedule  DisruptionType = "customer_reschedule"
)

// DisruptionSeverity grades how urgently an event must be handled.
type DisruptionSeverity string

const (
	SeverityLow    DisruptionSeverity = "low"
	SeverityMedium DisruptionSeverity = "medium"
	SeverityHigh   DisruptionSeverity = "high"
)

// Preempts reports whether the severity justifies cancelling an in-flight
// batch optimization for the tenant.
func (s DisruptionSeverity) Preempts() bool { return s == SeverityHigh }

// DisruptionState tracks an event through the adaptation pipeline.
type DisruptionState string

const (
	DisruptionReceived    DisruptionState = "received"
	DisruptionScoped      DisruptionState = "scoped"
	DisruptionReoptimized DisruptionState = "reoptimized"
	DisruptionApplied     DisruptionState = "applied"
	DisruptionNotified    DisruptionState = "notified"
	DisruptionRejected    DisruptionState = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s DisruptionState) Terminal() bool {
	return s == DisruptionNotified || s == DisruptionRejected
}

// CanTransition reports whether moving from s to next is a legal step of the
// adaptation pipeline. Rejection is only possible while the event is being
// scoped.
func (s DisruptionState) CanTransition(next DisruptionState) bool {
	switch s {
	case DisruptionReceived:
		return next == DisruptionScoped
	case DisruptionScoped:
		return next == DisruptionReoptimized || next == DisruptionRejected
	case DisruptionReoptimized:
		return next == DisruptionApplied
	case DisruptionApplied:
		return next == DisruptionNotified
	default:
		return false
	}
}

// DisruptionEvent is a mid-day change that may invalidate the current plan.
// Only the payload fields relevant to Type are set.
type DisruptionEvent struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	Type         DisruptionType     `json:"type"`
	Severity     DisruptionSeverity `json:"severity,omitempty"` // defaults to medium when empty
	ReceivedAt   time.Time          `json:"received_at"`
	JobID        string             `json:"job_id,omitempty"`        // job concerned, when applicable
	TechnicianID string             `json:"technician_id,omitempty"` // technician concerned, when applicable

	Delay     time.Duration `json:"delay,omitempty"`      // traffic_delay: extra travel time on the affected route
	NewJob    *Job          `json:"new_job,omitempty"`    // emergency_insertion: job to place immediately
	NewWindow *TimeWindow   `json:"new_window,omitempty"` // customer_reschedule: replacement service window
	Area      *Area         `json:"area,omitempty"`       // weather: affected region
	Slowdown  float64       `json:"slowdown,omitempty"`   // weather: travel time multiplier, >= 1
}

// Validate checks that the event carries the payload its type requires.
func (e DisruptionEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("disruption id is required")
	}
	if e.TenantID == "" {
		return fmt.Errorf("disruption %s: tenant id is required", e.ID)
	}
	switch e.Severity {
	case "", SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return fmt.Errorf("disruption %s: unknown severity %q", e.ID, e.Severity)
	}
	switch e.Type {
	case DisruptionTrafficDelay:
		if e.TechnicianID == "" && e.JobID == "" {
			return fmt.Errorf("disruption %s: traffic delay needs a technician or job reference", e.ID)
		}
		if e.Delay <= 0 {
			return fmt.Errorf("disruption %s: traffic delay must be positive", e.ID)
		}
	case DisruptionWeather:
		if e.Area == nil {
			return fmt.Errorf("disruption %s: weather event needs an affected area", e.ID)
		}
		if e.Slowdown < 1 {
			return fmt.Errorf("disruption %s: weather slowdown must be >= 1", e.ID)
		}
	case DisruptionEmergencyInsertion:
		if e.NewJob == nil {
			return fmt.Errorf("disruption %s: emergency insertion needs a job payload", e.ID)
		}
		if err := e.NewJob.Validate(); err != nil {
			return fmt.Errorf("disruption %s: %w", e.ID, err)
		}
	case DisruptionResourceUnavailable:
		if e.TechnicianID == "" {
			return fmt.Errorf("disruption %s: resource unavailable needs a technician reference", e.ID)
		}
	case DisruptionCustomerReschedule:
		if e.JobID == "" {
			return fmt.Errorf("disruption %s: reschedule needs a job reference", e.ID)
		}
		if e.NewWindow == nil {
			return fmt.Errorf("disruption %s: reschedule needs a replacement window", e.ID)
		}
		if err := e.NewWindow.Validate(); err != nil {
			return fmt.Errorf("disruption %s: %w", e.ID, err)
		}
	default:
		return fmt.Errorf("disruption %s: unknown type %q", e.ID, e.Type)
	}
	return nil
}
