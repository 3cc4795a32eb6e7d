// Package schedule holds the committed schedule per tenant and the
// coordination primitives around it: a versioned snapshot store and a
// registry enforcing one mutating run per tenant.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// ErrVersionConflict means the snapshot changed between read and swap.
var ErrVersionConflict = errors.New("schedule version conflict")

// ErrNoSchedule means the tenant has no committed schedule yet.
var ErrNoSchedule = errors.New("no committed schedule")

// Snapshot is a tenant's committed schedule together with the inputs it
// was computed from. Snapshots are passed by value and never mutated in
// place; adaptation reads one, computes, and swaps in a successor.
type Snapshot struct {
	TenantID    string
	Version     int // monotonically increasing per tenant
	Plan        model.Plan
	Jobs        []model.Job
	Technicians []model.Technician
	Constraints model.ConstraintSet
	CommittedAt time.Time
}

// Store keeps one committed snapshot per tenant.
type Store interface {
	// Commit installs the snapshot unconditionally and returns it with the
	// next version number.
	Commit(snap Snapshot) Snapshot
	// Swap installs the snapshot only if snap.Version still matches the
	// committed version, guarding all-or-nothing adaptation applies.
	Swap(snap Snapshot) (Snapshot, error)
	Get(tenantID string) (Snapshot, bool)
	Tenants() []string
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Snapshot
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Snapshot{}, now: time.Now}
}

func (s *MemoryStore) Commit(snap Snapshot) Snapshot {
	s.mu.Lock()
	cur := s.data[snap.TenantID]
	snap.Version = cur.Version + 1
	snap.CommittedAt = s.now()
	s.data[snap.TenantID] = snap
	s.mu.Unlock()
	return snap
}

func (s *MemoryStore) Swap(snap Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[snap.TenantID]
	if !ok {
		return Snapshot{}, fmt.Errorf("tenant %s: %w: no committed schedule", snap.TenantID, ErrVersionConflict)
	}
	if cur.Version != snap.Version {
		return Snapshot{}, fmt.Errorf("tenant %s: %w: have v%d, expected v%d", snap.TenantID, ErrVersionConflict, cur.Version, snap.Version)
	}
	snap.Version = cur.Version + 1
	snap.CommittedAt = s.now()
	s.data[snap.TenantID] = snap
	return snap, nil
}

func (s *MemoryStore) Get(tenantID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[tenantID]
	return snap, ok
}

func (s *MemoryStore) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, 0, len(s.data))
	for id := range s.data {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}
