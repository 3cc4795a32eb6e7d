// Package location keeps the last known position of every technician.
// Writes arrive at device-report frequency and must never block
// scheduling reads, so the store holds the lock only for the map update.
package location

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// DefaultMaxAge is the staleness bound past which a ping is ignored in
// favor of the technician's base location.
const DefaultMaxAge = 5 * time.Minute

// Store is the in-process last-known-location snapshot.
type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string]model.LocationPing // tenant -> technician -> ping
	maxAge time.Duration
	now    func() time.Time
}

// NewStore builds a Store. maxAge <= 0 selects DefaultMaxAge.
func NewStore(maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		data:   map[string]map[string]model.LocationPing{},
		maxAge: maxAge,
		now:    time.Now,
	}
}

// MaxAge returns the configured staleness bound.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// Set records a ping, overwriting any previous one for the technician.
// A zero timestamp is stamped with the current time.
func (s *Store) Set(ping model.LocationPing) error {
	if ping.At.IsZero() {
		ping.At = s.now()
	}
	if err := ping.Validate(); err != nil {
		return fmt.Errorf("location store: %w", err)
	}
	s.mu.Lock()
	tenant, ok := s.data[ping.TenantID]
	if !ok {
		tenant = map[string]model.LocationPing{}
		s.data[ping.TenantID] = tenant
	}
	tenant[ping.TechnicianID] = ping
	s.mu.Unlock()
	return nil
}

// Get returns the technician's last ping, fresh or not.
func (s *Store) Get(tenantID, technicianID string) (model.LocationPing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ping, ok := s.data[tenantID][technicianID]
	return ping, ok
}

// Fresh reports whether the technician has a ping inside the staleness
// bound.
func (s *Store) Fresh(tenantID, technicianID string, now time.Time) bool {
	ping, ok := s.Get(tenantID, technicianID)
	return ok && !ping.StaleAt(now, s.maxAge)
}

// List returns the tenant's pings sorted by technician id.
func (s *Store) List(tenantID string) []model.LocationPing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.LocationPing, 0, len(s.data[tenantID]))
	for _, ping := range s.data[tenantID] {
		res = append(res, ping)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TechnicianID < res[j].TechnicianID })
	return res
}

// Stamp returns a copy of the technicians with their last known ping
// attached. Staleness is resolved later by EffectiveLocation, so stale
// pings are stamped too.
func (s *Store) Stamp(techs []model.Technician) []model.Technician {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Technician, len(techs))
	for i, t := range techs {
		if ping, ok := s.data[t.TenantID][t.ID]; ok {
			p := ping
			t.LastPing = &p
		}
		out[i] = t
	}
	return out
}
