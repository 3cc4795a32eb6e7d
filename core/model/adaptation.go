package model

import (
	"fmt"
	"time"
)

// AdaptationPreferences bound how far a disruption repair may reshape the
// committed schedule.
type AdaptationPreferences struct {
	AllowOvertime        bool          `json:"allow_overtime"`
	MaxScheduleDelay     time.Duration `json:"max_schedule_delay"`     // cap on how far any start may slip; zero means uncapped
	MaxReassignments     int           `json:"max_reassignments"`      // jobs that may move to another technician; zero forbids moves
	PreferSameTechnician bool          `json:"prefer_same_technician"` // bias repairs towards the original technician
	Notify               bool          `json:"notify"`                 // queue notifications once applied
}

// Validate checks that the preferences are sound.
func (p AdaptationPreferences) Validate() error {
	if p.MaxScheduleDelay < 0 {
		return fmt.Errorf("max schedule delay must not be negative")
	}
	if p.MaxReassignments < 0 {
		return fmt.Errorf("max reassignments must not be negative")
	}
	return nil
}

// JobChange records how one job's assignment differs after an adaptation.
type JobChange struct {
	JobID  string      `json:"job_id"`
	Before *Assignment `json:"before,omitempty"` // nil when the job was previously unscheduled
	After  *Assignment `json:"after,omitempty"`  // nil when the job lost its slot
}

// Reassigned reports whether the job moved to a different technician.
func (c JobChange) Reassigned() bool {
	return c.Before != nil && c.After != nil && c.Before.TechnicianID != c.After.TechnicianID
}

// Delay returns how far the job's start slipped, never negative.
func (c JobChange) Delay() time.Duration {
	if c.Before == nil || c.After == nil {
		return 0
	}
	d := c.After.Start.Sub(c.Before.Start)
	if d < 0 {
		return 0
	}
	return d
}

// AdaptationResult is the outcome of handling one disruption.
type AdaptationResult struct {
	DisruptionID    string          `json:"disruption_id"`
	State           DisruptionState `json:"state"`                     // applied, rejected or notified
	Reason          string          `json:"reason"`                    // human-readable adaptation reason
	Affected        []string        `json:"affected,omitempty"`        // scoped job ids; everything else is untouched
	Changes         []JobChange     `json:"changes,omitempty"`
	Reassignments   int             `json:"reassignments"`
	MaxDelay        time.Duration   `json:"max_delay"`
	Impact          float64         `json:"impact"`                    // aggregate impact score, >= 0
	Recommendations []string        `json:"recommendations,omitempty"` // set when the adaptation was rejected
}
