package optimizer

import "github.com/dispatchlab/fieldops/core/model"

// costEps is the strict-improvement margin for cost comparisons.
const costEps = 1e-6

// insertion is one feasible placement of a job on a technician's route.
type insertion struct {
	tech int
	pos  int
	cost float64
	eval routeEval
	ok   bool
}

func insertAt(seq []int, j, pos int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, j)
	out = append(out, seq[pos:]...)
	return out
}

func removeAt(seq []int, pos int) []int {
	out := make([]int, 0, len(seq)-1)
	out = append(out, seq[:pos]...)
	out = append(out, seq[pos+1:]...)
	return out
}

// bestInsertion returns the cheapest feasible position for job j on
// technician t, preferring the earliest position on cost ties. The second
// return value lists the violation causes of the rejected positions.
func (s *solver) bestInsertion(j, t int, seq []int) (insertion, []infeasibility) {
	base := s.evalRoute(t, seq, relaxations{})
	baseCost := 0.0
	if base.ok {
		baseCost = s.routeCost(t, base, seq)
	}
	var best insertion
	var causes []infeasibility
	for pos := 0; pos <= len(seq); pos++ {
		trial := insertAt(seq, j, pos)
		ev := s.evalRoute(t, trial, relaxations{})
		if !ev.ok {
			causes = append(causes, ev.cause)
			continue
		}
		cost := s.routeCost(t, ev, trial) - baseCost
		if !best.ok || cost < best.cost-costEps {
			best = insertion{tech: t, pos: pos, cost: cost, eval: ev, ok: true}
		}
	}
	return best, causes
}

// anyFeasible reports whether job j fits anywhere on technician t's route
// under the given relaxations.
func (s *solver) anyFeasible(j, t int, seq []int, rx relaxations) bool {
	for pos := 0; pos <= len(seq); pos++ {
		if ev := s.evalRoute(t, insertAt(seq, j, pos), rx); ev.ok {
			return true
		}
	}
	return false
}

// classifyRejection decides the reason code for a job no candidate could
// host. Codes are picked by how close the job came to fitting: a placement
// blocked only by the travel cap reports travel_time_exceeded, one blocked
// only by working hours reports no_slot, anything else no_candidate.
func (s *solver) classifyRejection(j int, candidates []int, order [][]int) model.ReasonCode {
	for _, t := range candidates {
		if s.anyFeasible(j, t, order[t], relaxations{liftTravelCap: true}) {
			return model.ReasonTravelExceeded
		}
	}
	for _, t := range candidates {
		if s.anyFeasible(j, t, order[t], relaxations{liftTravelCap: true, allowOvertime: true}) {
			return model.ReasonNoSlot
		}
	}
	return model.ReasonNoCandidate
}
