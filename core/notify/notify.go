// Package notify defines the port used to tell technicians that their
// schedule changed after an adaptation.
package notify

import (
	"context"
	"time"
)

// Notice tells a technician that part of their route changed.
type Notice struct {
	TenantID     string
	TechnicianID string
	DisruptionID string
	Message      string
	ChangedJobs  []string // ids of the jobs whose stop moved, was added or was dropped
	EffectiveAt  time.Time
}

// Notifier delivers notices to technicians. Implementations report how many
// delivery attempts were made so callers can record the outcome.
type Notifier interface {
	Notify(ctx context.Context, n Notice) (attempts int, err error)
}

// NopNotifier accepts every notice without delivering it anywhere.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) (int, error) { return 1, nil }
