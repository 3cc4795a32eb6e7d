package optimizer

import (
	"time"

	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/travel"
)

// infeasibility names the first hard bound a trial route breaks.
type infeasibility int

const (
	causeNone infeasibility = iota
	causeWindow   // a job cannot start inside its window
	causeTravel   // a leg exceeds the max travel bound
	causeShift    // the route runs past the shift end without overtime
	causeCapacity // the route exceeds the daily job cap
)

// relaxations lift individual hard bounds while classifying why a job could
// not be placed. The strict evaluation uses the zero value.
type relaxations struct {
	liftTravelCap bool
	allowOvertime bool
}

// solver carries the immutable inputs of one optimization pass. Technicians
// and jobs are addressed by index; point indexes into the travel matrix are
// technicians first, then jobs.
type solver struct {
	jobs     []model.Job
	techs    []model.Technician
	cs       model.ConstraintSet
	matrix   travel.Matrix
	shifts   []model.TimeWindow // effective shift per technician
	caps     []int              // effective daily cap per technician
	eligible [][]bool           // [job][technician] static eligibility
	opts     Options
}

func newSolver(jobs []model.Job, techs []model.Technician, cs model.ConstraintSet, m travel.Matrix, eligible [][]bool, opts Options) *solver {
	s := &solver{jobs: jobs, techs: techs, cs: cs, matrix: m, eligible: eligible, opts: opts}
	s.shifts = make([]model.TimeWindow, len(techs))
	s.caps = make([]int, len(techs))
	for i, t := range techs {
		s.shifts[i] = cs.ShiftFor(t)
		s.caps[i] = cs.CapFor(t)
	}
	return s
}

// candidateIdx lists the statically eligible technicians for job j in
// ascending index order.
func (s *solver) candidateIdx(j int) []int {
	var out []int
	for t := range s.techs {
		if s.eligible[j][t] {
			out = append(out, t)
		}
	}
	return out
}

func (s *solver) techPt(t int) int { return t }
func (s *solver) jobPt(j int) int  { return len(s.techs) + j }

// routeEval is the simulated timeline of one technician's route.
type routeEval struct {
	stops  []model.Assignment
	travel time.Duration
	busy   time.Duration // travel plus service time
	ok     bool
	cause  infeasibility
}

// evalRoute walks the job sequence chronologically from the shift start,
// clamping each service start to its window. It stops at the first violated
// bound and reports the cause.
func (s *solver) evalRoute(t int, seq []int, rx relaxations) routeEval {
	shift := s.shifts[t]
	if len(seq) > s.caps[t] {
		return routeEval{cause: causeCapacity}
	}
	cursor := shift.Start
	pt := s.techPt(t)
	ev := routeEval{stops: make([]model.Assignment, 0, len(seq))}
	for _, j := range seq {
		job := s.jobs[j]
		tt := s.matrix.At(pt, s.jobPt(j))
		if !rx.liftTravelCap && s.cs.MaxTravelTime > 0 && tt > s.cs.MaxTravelTime {
			return routeEval{cause: causeTravel}
		}
		arrival := cursor.Add(tt)
		start := arrival
		if start.Before(job.Window.Start) {
			start = job.Window.Start
		}
		if !start.Before(job.Window.End) {
			return routeEval{cause: causeWindow}
		}
		finish := start.Add(job.Duration)
		if !s.cs.OvertimeAllowed && !rx.allowOvertime && finish.After(shift.End) {
			return routeEval{cause: causeShift}
		}
		ev.stops = append(ev.stops, model.Assignment{
			JobID:        job.ID,
			TechnicianID: s.techs[t].ID,
			Arrival:      arrival,
			Start:        start,
			Finish:       finish,
			Travel:       tt,
		})
		ev.travel += tt
		ev.busy += tt + job.Duration
		cursor = finish
		pt = s.jobPt(j)
	}
	ev.ok = true
	return ev
}

// skillPenalty is the fraction of the job's required skills the technician
// lacks. It is zero whenever strict skill matching is on, because candidates
// are then guaranteed to hold every skill.
func (s *solver) skillPenalty(j, t int) float64 {
	if s.cs.SkillMatchRequired {
		return 0
	}
	req := s.jobs[j].Skills
	if len(req) == 0 {
		return 0
	}
	missing := 0
	for _, r := range req {
		found := false
		for _, have := range s.techs[t].Skills {
			if have == r {
				found = true
				break
			}
		}
		if !found {
			missing++
		}
	}
	return float64(missing) / float64(len(req))
}

// routeCost is the weighted objective contribution of one route: normalized
// travel, idle share of the shift, and the skill penalties of its stops.
func (s *solver) routeCost(t int, ev routeEval, seq []int) float64 {
	c := s.cs.Weight(model.ObjectiveMinTravel) * ev.travel.Hours() / s.cs.MaxTravelTime.Hours()
	util := float64(ev.busy) / float64(s.shifts[t].Duration())
	if util > 1 {
		util = 1
	}
	c += s.cs.Weight(model.ObjectiveMaxUtilization) * (1 - util)
	w := s.cs.Weight(model.ObjectiveSkillMatch)
	if w > 0 {
		for _, j := range seq {
			c += w * s.skillPenalty(j, t)
		}
	}
	return c
}
