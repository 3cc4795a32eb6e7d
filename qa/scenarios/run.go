package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/analytics"
	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/disruption"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/optimizer"
	"github.com/dispatchlab/fieldops/core/schedule"
	"github.com/dispatchlab/fieldops/core/score"
	"github.com/dispatchlab/fieldops/core/travel"
	"github.com/dispatchlab/fieldops/infra/logger"
)

// downEstimator stands in for an unreachable road-time provider.
type downEstimator struct{}

func (downEstimator) Matrix(context.Context, []model.LatLng, []model.LatLng) (travel.Matrix, error) {
	return travel.Matrix{}, errors.New("provider down")
}

// RunScenario plans the scenario's day, checks the plan expectations, then
// feeds each disruption through the adaptation pipeline and checks the
// per-event expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	haversine := travel.NewHaversineEstimator(40)
	est := travel.Estimator(haversine)
	if sc.FailTravel {
		est = travel.NewFallbackEstimator(downEstimator{}, haversine, time.Second, logger.NopLogger{})
	}
	scorer := score.NewScorer(analytics.NewOnTimeProvider(), score.DefaultConfidenceWeights(), score.DefaultImpactWeights())
	engine := optimizer.New(est, logger.NopLogger{}, optimizer.Options{Budget: 5 * time.Second})

	cs := constraint.DefaultSet()
	sc.Constraints.Apply(&cs)
	jobs, techs, err := sc.Models()
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}

	res, err := engine.Optimize(context.Background(), optimizer.Problem{
		TenantID:    sc.Tenant,
		Jobs:        jobs,
		Technicians: techs,
		Constraints: cs,
		Now:         day.Add(7 * time.Hour),
	})
	if err != nil {
		t.Fatalf("scenario %s: optimize: %v", sc.Name, err)
	}
	plan := res.Plan
	scorer.ScorePlan(&plan, jobs, techs, cs)

	if got := plan.Assigned(); got != sc.Expect.Scheduled {
		t.Errorf("scenario %s: expected %d scheduled, got %d (unassigned: %v)", sc.Name, sc.Expect.Scheduled, got, plan.Unassigned)
	}
	for jobID, reason := range sc.Expect.Unassigned {
		found := false
		for _, u := range plan.Unassigned {
			if u.JobID != jobID {
				continue
			}
			found = true
			if string(u.Reason) != reason {
				t.Errorf("scenario %s: job %s expected reason %s, got %s", sc.Name, jobID, reason, u.Reason)
			}
		}
		if !found {
			t.Errorf("scenario %s: job %s not reported unassigned", sc.Name, jobID)
		}
	}
	if sc.Expect.Degraded != nil && plan.Degraded != *sc.Expect.Degraded {
		t.Errorf("scenario %s: expected degraded=%v, got %v", sc.Name, *sc.Expect.Degraded, plan.Degraded)
	}
	assertNoOverlap(t, sc.Name, plan)

	if len(sc.Events) == 0 {
		return
	}

	snaps := schedule.NewMemoryStore()
	snap := snaps.Commit(schedule.Snapshot{
		TenantID:    sc.Tenant,
		Plan:        plan,
		Jobs:        jobs,
		Technicians: techs,
		Constraints: cs,
	})
	handler := disruption.New(est, scorer, logger.NopLogger{},
		disruption.WithClock(func() time.Time { return day.Add(8 * time.Hour) }))

	for _, evDef := range sc.Events {
		ev, err := evDef.ToModel(sc.Tenant)
		if err != nil {
			t.Fatalf("scenario %s: event %s: %v", sc.Name, evDef.ID, err)
		}
		next, result, err := handler.Handle(context.Background(), snap, ev, evDef.Prefs.ToModel())
		if err != nil {
			t.Fatalf("scenario %s: event %s: %v", sc.Name, ev.ID, err)
		}
		checkEvent(t, sc.Name, evDef, result)
		if result.State == model.DisruptionRejected {
			continue
		}
		snap, err = snaps.Swap(next)
		if err != nil {
			t.Fatalf("scenario %s: event %s: swap: %v", sc.Name, ev.ID, err)
		}
		assertNoOverlap(t, sc.Name, snap.Plan)
	}
}

func checkEvent(t *testing.T, name string, evDef EventDef, result model.AdaptationResult) {
	exp := evDef.Expect
	if exp.State != "" && string(result.State) != exp.State {
		t.Errorf("scenario %s: event %s expected state %s, got %s (%s)", name, evDef.ID, exp.State, result.State, result.Reason)
	}
	if exp.Reassignments != nil && result.Reassignments != *exp.Reassignments {
		t.Errorf("scenario %s: event %s expected %d reassignments, got %d", name, evDef.ID, *exp.Reassignments, result.Reassignments)
	}
	if exp.MaxDelayMinAtMost > 0 {
		if limit := time.Duration(exp.MaxDelayMinAtMost) * time.Minute; result.MaxDelay > limit {
			t.Errorf("scenario %s: event %s max delay %s exceeds %s", name, evDef.ID, result.MaxDelay, limit)
		}
	}
	if exp.SameTechnician {
		for _, c := range result.Changes {
			if c.Before != nil && c.After != nil && c.Before.TechnicianID != c.After.TechnicianID {
				t.Errorf("scenario %s: event %s moved job %s from %s to %s", name, evDef.ID, c.JobID, c.Before.TechnicianID, c.After.TechnicianID)
			}
		}
	}
	if result.State == model.DisruptionRejected && len(result.Recommendations) == 0 {
		t.Errorf("scenario %s: event %s rejected without recommendations", name, evDef.ID)
	}
}

func assertNoOverlap(t *testing.T, name string, plan model.Plan) {
	t.Helper()
	for _, r := range plan.Routes {
		for i := 1; i < len(r.Stops); i++ {
			prev, cur := r.Stops[i-1], r.Stops[i]
			if prev.Finish.Add(cur.Travel).After(cur.Start) {
				t.Errorf("scenario %s: route %s: stop %s overlaps %s", name, r.TechnicianID, prev.JobID, cur.JobID)
			}
		}
	}
}
