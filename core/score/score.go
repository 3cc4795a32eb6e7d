// Package score rates assignments and adaptations. Both scorers are pure
// functions of their inputs so they can be unit-tested in isolation.
package score

import (
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// NeutralOnTimeRate is assumed for technicians without history.
const NeutralOnTimeRate = 0.85

// slackRef is the slack at which an assignment is considered fully safe.
const slackRef = time.Hour

// delayRef is the schedule slip at which the delay term saturates.
const delayRef = 2 * time.Hour

// costRef normalizes per-job cost deltas, roughly an hour of blended labor.
const costRef = 50.0

// degradedCertainty replaces full certainty when travel estimates came from
// the distance fallback.
const degradedCertainty = 0.6

// HistoryProvider supplies a technician's historical on-time rate in [0,1].
// The analytics aggregator implements it; NeutralHistory is the default.
type HistoryProvider interface {
	OnTimeRate(technicianID string) float64
}

// NeutralHistory reports the neutral rate for every technician.
type NeutralHistory struct{}

func (NeutralHistory) OnTimeRate(string) float64 { return NeutralOnTimeRate }

// ConfidenceWeights blend the four confidence dimensions. They should sum
// to 1; Scorer renormalizes when they do not.
type ConfidenceWeights struct {
	Slack     float64
	Skill     float64
	History   float64
	Certainty float64
}

// DefaultConfidenceWeights weigh schedule slack heaviest.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{Slack: 0.45, Skill: 0.25, History: 0.20, Certainty: 0.10}
}

// ImpactWeights blend the three impact dimensions of one job change.
type ImpactWeights struct {
	Delay      float64
	Reassigned float64
	Cost       float64
}

// DefaultImpactWeights weigh schedule slips heaviest.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{Delay: 0.6, Reassigned: 0.25, Cost: 0.15}
}

// Scorer computes confidence and impact scores.
type Scorer struct {
	cw      ConfidenceWeights
	iw      ImpactWeights
	history HistoryProvider
}

// NewScorer builds a Scorer. A nil history falls back to NeutralHistory.
func NewScorer(history HistoryProvider, cw ConfidenceWeights, iw ImpactWeights) *Scorer {
	if history == nil {
		history = NeutralHistory{}
	}
	total := cw.Slack + cw.Skill + cw.History + cw.Certainty
	if total <= 0 {
		cw = DefaultConfidenceWeights()
	} else if total != 1 {
		cw.Slack /= total
		cw.Skill /= total
		cw.History /= total
		cw.Certainty /= total
	}
	return &Scorer{cw: cw, iw: iw, history: history}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SkillMatch returns the fraction of the required skills the technician
// holds, 1 when nothing is required.
func SkillMatch(t model.Technician, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	held := 0
	for _, r := range required {
		if t.HasSkills([]string{r}) {
			held++
		}
	}
	return float64(held) / float64(len(required))
}

// OnTime returns the technician's historical on-time rate, clamped.
func (s *Scorer) OnTime(technicianID string) float64 {
	return clamp01(s.history.OnTimeRate(technicianID))
}

// Confidence rates a single assignment. slack is the idle time before the
// next committed stop (or until the shift end for the last stop), skill the
// fraction of required skills held, onTime the technician's historical
// on-time rate, degraded whether travel estimates came from the fallback.
func (s *Scorer) Confidence(slack time.Duration, skill, onTime float64, degraded bool) float64 {
	slackScore := clamp01(float64(slack) / float64(slackRef))
	certainty := 1.0
	if degraded {
		certainty = degradedCertainty
	}
	v := s.cw.Slack*slackScore + s.cw.Skill*clamp01(skill) + s.cw.History*clamp01(onTime) + s.cw.Certainty*certainty
	return clamp01(v)
}

// ScorePlan fills in the confidence of every assignment and the plan's mean
// confidence.
func (s *Scorer) ScorePlan(plan *model.Plan, jobs []model.Job, techs []model.Technician, cs model.ConstraintSet) {
	jobByID := make(map[string]model.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID] = j
	}
	techByID := make(map[string]model.Technician, len(techs))
	for _, t := range techs {
		techByID[t.ID] = t
	}

	count := 0
	sum := 0.0
	for ri := range plan.Routes {
		route := &plan.Routes[ri]
		tech, okTech := techByID[route.TechnicianID]
		shift := cs.ShiftFor(tech)
		for i := range route.Stops {
			stop := &route.Stops[i]
			var slack time.Duration
			if i+1 < len(route.Stops) {
				next := route.Stops[i+1]
				slack = next.Start.Sub(stop.Finish.Add(next.Travel))
			} else if !shift.IsZero() {
				slack = shift.End.Sub(stop.Finish)
			}
			skill := 1.0
			if job, ok := jobByID[stop.JobID]; ok && okTech {
				skill = SkillMatch(tech, job.Skills)
			}
			stop.Confidence = s.Confidence(slack, skill, s.history.OnTimeRate(route.TechnicianID), plan.Degraded)
			sum += stop.Confidence
			count++
		}
	}
	if count > 0 {
		plan.Confidence = sum / float64(count)
	}
}

// Impact rates the magnitude of an adaptation against the pre-disruption
// schedule. It sums a per-change blend of delay, reassignment and cost
// terms and is never negative.
func (s *Scorer) Impact(changes []model.JobChange, techs []model.Technician) float64 {
	techByID := make(map[string]model.Technician, len(techs))
	for _, t := range techs {
		techByID[t.ID] = t
	}
	iw := s.iw
	if iw.Delay+iw.Reassigned+iw.Cost <= 0 {
		iw = DefaultImpactWeights()
	}
	total := 0.0
	for _, c := range changes {
		delayScore := clamp01(float64(c.Delay()) / float64(delayRef))
		reassigned := 0.0
		if c.Reassigned() {
			reassigned = 1
		}
		costScore := clamp01(s.costDelta(c, techByID) / costRef)
		total += iw.Delay*delayScore + iw.Reassigned*reassigned + iw.Cost*costScore
	}
	if total < 0 {
		return 0
	}
	return total
}

// costDelta prices the travel-time change of one job in the technician's
// hourly rate.
func (s *Scorer) costDelta(c model.JobChange, techs map[string]model.Technician) float64 {
	if c.Before == nil || c.After == nil {
		return 0
	}
	delta := (c.After.Travel - c.Before.Travel).Hours()
	if delta < 0 {
		delta = -delta
	}
	rate := techs[c.After.TechnicianID].HourlyCost
	if rate <= 0 {
		return 0
	}
	return delta * rate
}
