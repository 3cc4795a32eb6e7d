// Package constraint validates optimization inputs and answers the static
// eligibility questions the optimizer asks before placing a job.
package constraint

import (
	"fmt"
	"strings"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// Violation describes one rejected field of a request.
type Violation struct {
	Field  string
	Detail string
}

// ValidationError enumerates every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Detail)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Field: field, Detail: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// defaultWeights are the documented objective weights applied when a request
// lists objectives without weighting them.
var defaultWeights = map[model.ObjectiveKind]float64{
	model.ObjectiveMinTravel:      0.5,
	model.ObjectiveMaxUtilization: 0.3,
	model.ObjectiveSkillMatch:     0.2,
}

// DefaultSet returns the constraint set applied when a request carries none.
func DefaultSet() model.ConstraintSet {
	return model.ConstraintSet{
		MaxTravelTime:        2 * time.Hour,
		MaxJobsPerTechnician: 16,
		SkillMatchRequired:   true,
		Objectives: []model.Objective{
			{Kind: model.ObjectiveMinTravel, Weight: 0.5},
			{Kind: model.ObjectiveMaxUtilization, Weight: 0.3},
			{Kind: model.ObjectiveSkillMatch, Weight: 0.2},
		},
	}
}

// ValidateSet checks a constraint set and returns a normalized copy whose
// objective weights sum to 1. Every violation is reported in one pass.
func ValidateSet(cs model.ConstraintSet) (model.ConstraintSet, error) {
	verr := &ValidationError{}
	if cs.MaxTravelTime <= 0 {
		verr.add("max_travel_time", "must be positive, got %s", cs.MaxTravelTime)
	}
	if !cs.WorkingHours.IsZero() {
		if err := cs.WorkingHours.Validate(); err != nil {
			verr.add("working_hours", "%v", err)
		}
	}
	if cs.MaxJobsPerTechnician < 0 {
		verr.add("max_jobs_per_technician", "must not be negative, got %d", cs.MaxJobsPerTechnician)
	}
	if len(cs.Objectives) == 0 {
		verr.add("objectives", "at least one objective is required")
	}

	seen := map[model.ObjectiveKind]bool{}
	sum := 0.0
	normalized := make([]model.Objective, len(cs.Objectives))
	for i, o := range cs.Objectives {
		normalized[i] = o
		if _, known := defaultWeights[o.Kind]; !known {
			verr.add("objectives", "unknown objective %q", o.Kind)
			continue
		}
		if seen[o.Kind] {
			verr.add("objectives", "duplicate objective %q", o.Kind)
			continue
		}
		seen[o.Kind] = true
		if o.Weight < 0 {
			verr.add("objectives", "objective %q has negative weight", o.Kind)
			continue
		}
		sum += o.Weight
	}
	if err := verr.orNil(); err != nil {
		return model.ConstraintSet{}, err
	}

	if sum > 0 {
		for i := range normalized {
			normalized[i].Weight /= sum
		}
	} else {
		// No weights supplied: apply the documented defaults for the
		// listed objectives and renormalize.
		total := 0.0
		for _, o := range normalized {
			total += defaultWeights[o.Kind]
		}
		for i := range normalized {
			normalized[i].Weight = defaultWeights[normalized[i].Kind] / total
		}
	}
	cs.Objectives = normalized
	return cs, nil
}

// ValidateProblem checks every job and technician of a request, reporting
// all violations together. No state is touched before this passes.
func ValidateProblem(jobs []model.Job, techs []model.Technician, cs model.ConstraintSet) error {
	verr := &ValidationError{}
	if len(jobs) == 0 {
		verr.add("jobs", "at least one job is required")
	}
	if len(techs) == 0 {
		verr.add("technicians", "at least one technician is required")
	}
	seenJobs := map[string]bool{}
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			verr.add("jobs", "%v", err)
			continue
		}
		if seenJobs[j.ID] {
			verr.add("jobs", "duplicate job id %s", j.ID)
		}
		seenJobs[j.ID] = true
	}
	seenTechs := map[string]bool{}
	for _, t := range techs {
		if err := t.Validate(); err != nil {
			verr.add("technicians", "%v", err)
			continue
		}
		if seenTechs[t.ID] {
			verr.add("technicians", "duplicate technician id %s", t.ID)
		}
		seenTechs[t.ID] = true
		if t.Shift.IsZero() && cs.WorkingHours.IsZero() {
			verr.add("technicians", "technician %s has no shift and no tenant working hours are set", t.ID)
		}
	}
	return verr.orNil()
}
