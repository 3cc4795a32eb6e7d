package model

import (
	"fmt"
	"time"
)

// Technician represents a field worker with a shift, a skill set and a
// starting position.
type Technician struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Skills   []string   `json:"skills,omitempty"`
	Shift    TimeWindow `json:"shift"`              // working hours; empty falls back to the tenant default
	Base     LatLng     `json:"base"`               // position at the start of the shift
	MaxJobs  int        `json:"max_jobs,omitempty"` // maximum visits per day, 0 means uncapped
	Absent   bool       `json:"absent,omitempty"`   // true when the technician is unavailable for the day

	// LastPing is the most recent position report, if any.
	LastPing *LocationPing `json:"last_ping,omitempty"`

	// HourlyCost is used to express plan cost deltas in a common unit.
	// Zero means the technician does not contribute to cost scoring.
	HourlyCost float64 `json:"hourly_cost,omitempty"`
}

// Validate checks that the technician definition is sound.
func (t Technician) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("technician id is required")
	}
	if !t.Shift.IsZero() {
		if err := t.Shift.Validate(); err != nil {
			return fmt.Errorf("technician %s: %w", t.ID, err)
		}
	}
	if err := t.Base.Validate(); err != nil {
		return fmt.Errorf("technician %s: %w", t.ID, err)
	}
	if t.MaxJobs < 0 {
		return fmt.Errorf("technician %s: max jobs must not be negative", t.ID)
	}
	return nil
}

// EffectiveLocation returns the technician's last reported position when it
// is fresh enough, and the base location otherwise.
func (t Technician) EffectiveLocation(now time.Time, maxAge time.Duration) LatLng {
	if t.LastPing != nil && !t.LastPing.StaleAt(now, maxAge) {
		return t.LastPing.Position
	}
	return t.Base
}

// HasSkills reports whether the technician holds every required skill.
func (t Technician) HasSkills(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		found := false
		for _, s := range t.Skills {
			if s == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SkillOverlap returns the fraction of the technician's skills that the job
// actually requires. A technician whose whole skill set is needed scores 1.
func (t Technician) SkillOverlap(required []string) float64 {
	if len(t.Skills) == 0 || len(required) == 0 {
		return 1
	}
	used := 0
	for _, s := range t.Skills {
		for _, r := range required {
			if s == r {
				used++
				break
			}
		}
	}
	return float64(used) / float64(len(t.Skills))
}
