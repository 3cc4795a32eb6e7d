package model

import "time"

// ObjectiveKind names one weighted goal of the optimizer's cost function.
type ObjectiveKind string

const (
	// ObjectiveMinTravel weighs the travel time added by a placement.
	ObjectiveMinTravel ObjectiveKind = "minimize_travel_time"
	// ObjectiveMaxUtilization weighs the idle share of the technician's shift.
	ObjectiveMaxUtilization ObjectiveKind = "maximize_utilization"
	// ObjectiveSkillMatch penalises wasting broadly skilled technicians on
	// narrow jobs. Ignored while skill matching is strictly required.
	ObjectiveSkillMatch ObjectiveKind = "skill_match"
)

// Objective pairs a goal with its weight in the cost function.
type Objective struct {
	Kind   ObjectiveKind `json:"kind"`
	Weight float64       `json:"weight"`
}

// ConstraintSet carries the hard bounds and weighted objectives of one
// optimization request. Use constraint.DefaultSet for documented defaults.
type ConstraintSet struct {
	MaxTravelTime        time.Duration `json:"max_travel_time"`         // hard cap on any single travel leg
	WorkingHours         TimeWindow    `json:"working_hours"`           // default shift, used when a technician has none
	MaxJobsPerTechnician int           `json:"max_jobs_per_technician"` // hard daily cap; zero forbids any assignment
	SkillMatchRequired   bool          `json:"skill_match_required"`
	OvertimeAllowed      bool          `json:"overtime_allowed"`        // allows routes to run past the shift end
	Objectives           []Objective   `json:"objectives,omitempty"`
}

// Weight returns the weight of the given objective, or zero when absent.
func (c ConstraintSet) Weight(kind ObjectiveKind) float64 {
	for _, o := range c.Objectives {
		if o.Kind == kind {
			return o.Weight
		}
	}
	return 0
}

// CapFor returns the effective daily job cap for the technician, combining
// the tenant-wide bound with the technician's own cap.
func (c ConstraintSet) CapFor(t Technician) int {
	cap := c.MaxJobsPerTechnician
	if t.MaxJobs > 0 && t.MaxJobs < cap {
		cap = t.MaxJobs
	}
	return cap
}

// ShiftFor returns the technician's shift, falling back to the tenant-wide
// working hours when the technician has none.
func (c ConstraintSet) ShiftFor(t Technician) TimeWindow {
	if t.Shift.IsZero() {
		return c.WorkingHours
	}
	return t.Shift
}
