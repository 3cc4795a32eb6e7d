package model

import (
	"fmt"
	"time"
)

// JobStatus tracks a job through its scheduling lifecycle.
type JobStatus string

const (
	JobUnscheduled JobStatus = "unscheduled"
	JobScheduled   JobStatus = "scheduled"
	JobAtRisk      JobStatus = "at_risk"
	JobCompleted   JobStatus = "completed"
	JobCancelled   JobStatus = "cancelled"
)

// Job represents a single field-service visit to be scheduled.
type Job struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Location LatLng        `json:"location"`
	Duration time.Duration `json:"duration"`           // on-site service time
	Window   TimeWindow    `json:"window"`             // allowed service start window
	Skills   []string      `json:"skills,omitempty"`   // skills the assigned technician must hold
	Priority int           `json:"priority,omitempty"` // higher values are scheduled first
	Status   JobStatus     `json:"status,omitempty"`
}

// Validate checks that the job definition is sound.
func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := j.Location.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	if j.Duration <= 0 {
		return fmt.Errorf("job %s: service duration must be positive", j.ID)
	}
	if err := j.Window.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	if j.Priority < 0 {
		return fmt.Errorf("job %s: priority must not be negative", j.ID)
	}
	return nil
}

// Open reports whether the job still needs a slot on a route.
func (j Job) Open() bool {
	return j.Status == JobUnscheduled || j.Status == JobAtRisk || j.Status == ""
}

// LatestStart returns the last instant at which service may begin.
func (j Job) LatestStart() time.Time {
	return j.Window.End
}
