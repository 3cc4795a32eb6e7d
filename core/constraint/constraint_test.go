package constraint

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

func day(h, d int) model.TimeWindow {
	base := time.Date(2025, 6, 2, h, 0, 0, 0, time.UTC)
	return model.TimeWindow{Start: base, End: base.Add(time.Duration(d) * time.Hour)}
}

func TestValidateSetReportsAllViolations(t *testing.T) {
	cs := model.ConstraintSet{
		MaxTravelTime: 0,
		WorkingHours:  model.TimeWindow{Start: day(18, 1).Start, End: day(8, 1).Start},
	}
	_, err := ValidateSet(cs)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError got %T", err)
	}
	if len(verr.Violations) != 3 {
		t.Fatalf("expected 3 violations got %d: %v", len(verr.Violations), verr)
	}
}

func TestValidateSetNormalizesWeights(t *testing.T) {
	cs := DefaultSet()
	cs.Objectives = []model.Objective{
		{Kind: model.ObjectiveMinTravel, Weight: 2},
		{Kind: model.ObjectiveMaxUtilization, Weight: 2},
	}
	out, err := ValidateSet(cs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, o := range out.Objectives {
		if math.Abs(o.Weight-0.5) > 1e-9 {
			t.Fatalf("expected normalized weight 0.5 got %v", o.Weight)
		}
	}
}

func TestValidateSetDefaultWeights(t *testing.T) {
	cs := DefaultSet()
	cs.Objectives = []model.Objective{
		{Kind: model.ObjectiveMinTravel},
		{Kind: model.ObjectiveSkillMatch},
	}
	out, err := ValidateSet(cs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0.0
	for _, o := range out.Objectives {
		sum += o.Weight
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected weights summing to 1 got %v", sum)
	}
	// Travel keeps its relative dominance over the skill objective.
	if out.Objectives[0].Weight <= out.Objectives[1].Weight {
		t.Fatalf("expected travel to outweigh skill: %+v", out.Objectives)
	}
}

func TestValidateSetRejectsUnknownObjective(t *testing.T) {
	cs := DefaultSet()
	cs.Objectives = []model.Objective{{Kind: "maximize_happiness", Weight: 1}}
	if _, err := ValidateSet(cs); err == nil {
		t.Fatalf("expected error for unknown objective")
	}
}

func TestValidateSetRejectsDuplicateObjective(t *testing.T) {
	cs := DefaultSet()
	cs.Objectives = []model.Objective{
		{Kind: model.ObjectiveMinTravel, Weight: 1},
		{Kind: model.ObjectiveMinTravel, Weight: 1},
	}
	if _, err := ValidateSet(cs); err == nil {
		t.Fatalf("expected error for duplicate objective")
	}
}

func TestValidateProblem(t *testing.T) {
	cs := DefaultSet()
	jobs := []model.Job{{
		ID:       "job-1",
		Location: model.LatLng{Lat: 48.85, Lng: 2.35},
		Duration: time.Hour,
		Window:   day(9, 4),
	}}
	techs := []model.Technician{{
		ID:    "tech-1",
		Shift: day(8, 9),
		Base:  model.LatLng{Lat: 48.84, Lng: 2.34},
	}}
	if err := ValidateProblem(jobs, techs, cs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := append(jobs, jobs[0])
	err := ValidateProblem(bad, nil, cs)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError got %T", err)
	}
	// Duplicate job id and missing technicians appear together.
	if len(verr.Violations) != 2 {
		t.Fatalf("expected 2 violations got %d: %v", len(verr.Violations), verr)
	}
}

func TestValidateProblemRequiresShiftOrWorkingHours(t *testing.T) {
	cs := DefaultSet()
	jobs := []model.Job{{
		ID:       "job-1",
		Location: model.LatLng{Lat: 48.85, Lng: 2.35},
		Duration: time.Hour,
		Window:   day(9, 4),
	}}
	techs := []model.Technician{{ID: "tech-1", Base: model.LatLng{Lat: 48.84, Lng: 2.34}}}
	if err := ValidateProblem(jobs, techs, cs); err == nil {
		t.Fatalf("expected error for shiftless technician")
	}
	cs.WorkingHours = day(8, 10)
	if err := ValidateProblem(jobs, techs, cs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCandidates(t *testing.T) {
	cs := DefaultSet()
	job := model.Job{
		ID:       "job-1",
		Location: model.LatLng{Lat: 48.85, Lng: 2.35},
		Duration: time.Hour,
		Window:   day(9, 4),
		Skills:   []string{"hvac"},
	}
	techs := []model.Technician{
		{ID: "tech-3", Skills: []string{"hvac"}, Shift: day(8, 9)},
		{ID: "tech-1", Skills: []string{"hvac"}, Shift: day(8, 9)},
		{ID: "tech-2", Skills: []string{"plumbing"}, Shift: day(8, 9)},
		{ID: "tech-4", Skills: []string{"hvac"}, Shift: day(8, 9), Absent: true},
		{ID: "tech-5", Skills: []string{"hvac"}, Shift: day(18, 2)},
	}
	got := Candidates(job, techs, cs)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates got %d", len(got))
	}
	if got[0].ID != "tech-1" || got[1].ID != "tech-3" {
		t.Fatalf("candidates must be sorted by id: %v", got)
	}
}

func TestCandidatesZeroCap(t *testing.T) {
	cs := DefaultSet()
	cs.MaxJobsPerTechnician = 0
	job := model.Job{ID: "job-1", Window: day(9, 4)}
	techs := []model.Technician{{ID: "tech-1", Shift: day(8, 9)}}
	if got := Candidates(job, techs, cs); len(got) != 0 {
		t.Fatalf("zero cap must produce no candidates, got %v", got)
	}
}

func TestCandidatesSkillMatchOptional(t *testing.T) {
	cs := DefaultSet()
	cs.SkillMatchRequired = false
	job := model.Job{ID: "job-1", Window: day(9, 4), Skills: []string{"hvac"}}
	techs := []model.Technician{{ID: "tech-1", Skills: []string{"plumbing"}, Shift: day(8, 9)}}
	if got := Candidates(job, techs, cs); len(got) != 1 {
		t.Fatalf("skill mismatch should pass when matching is optional")
	}
}
