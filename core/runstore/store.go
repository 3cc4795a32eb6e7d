// Package runstore persists optimization run records for audit and
// analytics. The memory store backs tests and single-node deployments;
// infra/runstore provides the sqlite implementation.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// ErrNotFound is returned when no record exists for the requested run id.
var ErrNotFound = errors.New("run not found")

// Record is one persisted optimization run: the run summary plus the plan
// it produced. Failed and cancelled runs carry a zero plan.
type Record struct {
	Run  model.Run  `json:"run"`
	Plan model.Plan `json:"plan"`
}

// Query filters run records. Zero fields match everything.
type Query struct {
	TenantID string
	Start    time.Time // inclusive lower bound on the run start
	End      time.Time // inclusive upper bound on the run start
	Status   model.RunStatus
	Limit    int // 0 means no limit
}

// Store persists run records and supports querying.
type Store interface {
	// Save inserts the record, replacing any previous record of the same
	// run id. Status transitions are saved by re-saving the record.
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, runID string) (Record, error)
	// List returns matching records ordered by start time, then run id.
	List(ctx context.Context, q Query) ([]Record, error)
	// PurgeBefore deletes records of runs started before the cutoff and
	// returns how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Record)}
}

// Save stores the record keyed by run id.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.Run.ID == "" {
		return fmt.Errorf("save run: id is required")
	}
	s.mu.Lock()
	s.runs[rec.Run.ID] = rec
	s.mu.Unlock()
	return nil
}

// Get returns the record of the given run id.
func (s *MemoryStore) Get(_ context.Context, runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return Record{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return rec, nil
}

// List returns matching records ordered by start time, then run id.
func (s *MemoryStore) List(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.runs))
	for _, rec := range s.runs {
		if matches(rec, q) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Run.StartedAt.Equal(out[j].Run.StartedAt) {
			return out[i].Run.StartedAt.Before(out[j].Run.StartedAt)
		}
		return out[i].Run.ID < out[j].Run.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// PurgeBefore removes records of runs started before the cutoff.
func (s *MemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	n := 0
	for id, rec := range s.runs {
		if rec.Run.StartedAt.Before(cutoff) {
			delete(s.runs, id)
			n++
		}
	}
	s.mu.Unlock()
	return n, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func matches(rec Record, q Query) bool {
	if q.TenantID != "" && rec.Run.TenantID != q.TenantID {
		return false
	}
	if !q.Start.IsZero() && rec.Run.StartedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Run.StartedAt.After(q.End) {
		return false
	}
	if q.Status != "" && rec.Run.Status != q.Status {
		return false
	}
	return true
}
