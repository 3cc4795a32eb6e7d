package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

var (
	// ErrTenantBusy means another mutating run holds the tenant. Retryable.
	ErrTenantBusy = errors.New("run already in progress")
	// ErrRunNotFound means the run id is unknown or already finished.
	ErrRunNotFound = errors.New("run not found")
)

// ActiveRun describes one in-flight mutating run.
type ActiveRun struct {
	RunID     string
	TenantID  string
	Trigger   model.RunTrigger
	StartedAt time.Time
	cancel    context.CancelFunc
}

// Registry enforces at most one mutating run per tenant and carries the
// cancellation handle of every in-flight run so CancelRun and disruption
// preemption can stop them cooperatively.
type Registry struct {
	mu       sync.Mutex
	byRun    map[string]*ActiveRun
	byTenant map[string]*ActiveRun
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byRun:    map[string]*ActiveRun{},
		byTenant: map[string]*ActiveRun{},
		now:      time.Now,
	}
}

// Acquire claims the tenant's mutating slot for the given run. The cancel
// func is invoked when the run is cancelled or preempted.
func (r *Registry) Acquire(runID, tenantID string, trigger model.RunTrigger, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byTenant[tenantID]; ok {
		return fmt.Errorf("tenant %s: %w (run %s, %s)", tenantID, ErrTenantBusy, cur.RunID, cur.Trigger)
	}
	run := &ActiveRun{
		RunID:     runID,
		TenantID:  tenantID,
		Trigger:   trigger,
		StartedAt: r.now(),
		cancel:    cancel,
	}
	r.byRun[runID] = run
	r.byTenant[tenantID] = run
	return nil
}

// Release frees the slot once the run finished. Releasing an unknown or
// already released run is a no-op.
func (r *Registry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byRun[runID]
	if !ok {
		return
	}
	delete(r.byRun, runID)
	if cur, ok := r.byTenant[run.TenantID]; ok && cur.RunID == runID {
		delete(r.byTenant, run.TenantID)
	}
}

// Cancel flips the run's context. The run keeps holding the tenant slot
// until it observes the cancellation and releases itself.
func (r *Registry) Cancel(runID string) error {
	r.mu.Lock()
	run, ok := r.byRun[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	run.cancel()
	return nil
}

// Preempt cancels the tenant's in-flight batch run so a disruption can
// take over, and reports which run was preempted. Adaptation runs are
// never preempted; the disruption is rejected as busy instead.
func (r *Registry) Preempt(tenantID string) (string, bool) {
	r.mu.Lock()
	run, ok := r.byTenant[tenantID]
	if !ok || run.Trigger != model.TriggerBatch {
		r.mu.Unlock()
		return "", false
	}
	r.mu.Unlock()
	run.cancel()
	return run.RunID, true
}

// Holder returns the run currently holding the tenant slot.
func (r *Registry) Holder(tenantID string) (ActiveRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.byTenant[tenantID]; ok {
		return *run, true
	}
	return ActiveRun{}, false
}

// Active lists every in-flight run sorted by run id.
func (r *Registry) Active() []ActiveRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]ActiveRun, 0, len(r.byRun))
	for _, run := range r.byRun {
		res = append(res, *run)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RunID < res[j].RunID })
	return res
}
