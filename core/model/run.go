package model

import "time"

// RunStatus tracks an optimization run through its lifecycle.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Done reports whether the run has reached a terminal status.
func (s RunStatus) Done() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunTrigger records what started an optimization run.
type RunTrigger string

const (
	TriggerBatch      RunTrigger = "batch"
	TriggerDisruption RunTrigger = "disruption"
)

// Run summarises one optimization pass for auditing and analytics.
type Run struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Trigger     RunTrigger     `json:"trigger"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	InputHash   string         `json:"input_hash"` // hash of the problem input, for idempotency checks
	Algorithm   string         `json:"algorithm"`  // algorithm version tag recorded for audit
	Jobs        int            `json:"jobs"`
	Technicians int            `json:"technicians"`
	Assigned    int            `json:"assigned"`
	Unassigned  int            `json:"unassigned"`
	Objective   float64        `json:"objective"`
	SkillDemand map[string]int `json:"skill_demand,omitempty"` // jobs per required skill, feeds demand forecasting
	Error       string         `json:"error,omitempty"`        // failure reason when Status is failed
}

// Elapsed returns the wall-clock duration of the run, or zero while running.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
