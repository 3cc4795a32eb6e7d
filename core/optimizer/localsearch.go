package optimizer

import (
	"context"
	"time"
)

// searchState is the working solution the local search improves in place.
// Route evaluations and costs are cached per technician so a move only
// re-evaluates the routes it touches.
type searchState struct {
	order [][]int
	evals []routeEval
	costs []float64
	total float64
}

func (s *solver) newSearchState(order [][]int) *searchState {
	st := &searchState{
		order: order,
		evals: make([]routeEval, len(order)),
		costs: make([]float64, len(order)),
	}
	for t := range order {
		st.evals[t] = s.evalRoute(t, order[t], relaxations{})
		st.costs[t] = s.routeCost(t, st.evals[t], order[t])
		st.total += st.costs[t]
	}
	return st
}

// moveResult carries the re-evaluated routes of a trial move. tb is -1 for
// single-route moves.
type moveResult struct {
	total        float64
	evA, evB     routeEval
	costA, costB float64
	ok           bool
}

func (s *solver) tryMove(st *searchState, ta, tb int, seqA, seqB []int) moveResult {
	evA := s.evalRoute(ta, seqA, relaxations{})
	if !evA.ok {
		return moveResult{}
	}
	costA := s.routeCost(ta, evA, seqA)
	res := moveResult{evA: evA, costA: costA, ok: true}
	total := st.total - st.costs[ta] + costA
	if tb >= 0 {
		evB := s.evalRoute(tb, seqB, relaxations{})
		if !evB.ok {
			return moveResult{}
		}
		costB := s.routeCost(tb, evB, seqB)
		total = total - st.costs[tb] + costB
		res.evB, res.costB = evB, costB
	}
	res.total = total
	return res
}

func (st *searchState) commit(ta, tb int, seqA, seqB []int, r moveResult) {
	st.order[ta] = seqA
	st.evals[ta] = r.evA
	st.costs[ta] = r.costA
	if tb >= 0 {
		st.order[tb] = seqB
		st.evals[tb] = r.evB
		st.costs[tb] = r.costB
	}
	st.total = r.total
}

// relocateSweep scans relocate moves in a fixed order and applies the first
// strictly improving one.
func (s *solver) relocateSweep(st *searchState) bool {
	for a := 0; a < len(st.order); a++ {
		for i := 0; i < len(st.order[a]); i++ {
			j := st.order[a][i]
			removed := removeAt(st.order[a], i)
			for b := 0; b < len(st.order); b++ {
				if b == a {
					for pos := 0; pos <= len(removed); pos++ {
						if pos == i {
							continue
						}
						seq := insertAt(removed, j, pos)
						if r := s.tryMove(st, a, -1, seq, nil); r.ok && r.total < st.total-costEps {
							st.commit(a, -1, seq, nil, r)
							return true
						}
					}
					continue
				}
				if !s.eligible[j][b] {
					continue
				}
				for pos := 0; pos <= len(st.order[b]); pos++ {
					seq := insertAt(st.order[b], j, pos)
					if r := s.tryMove(st, a, b, removed, seq); r.ok && r.total < st.total-costEps {
						st.commit(a, b, removed, seq, r)
						return true
					}
				}
			}
		}
	}
	return false
}

// swapSweep scans pairwise stop exchanges between distinct routes and
// applies the first strictly improving one.
func (s *solver) swapSweep(st *searchState) bool {
	for a := 0; a < len(st.order); a++ {
		for b := a + 1; b < len(st.order); b++ {
			for i := 0; i < len(st.order[a]); i++ {
				ja := st.order[a][i]
				if !s.eligible[ja][b] {
					continue
				}
				for k := 0; k < len(st.order[b]); k++ {
					jb := st.order[b][k]
					if !s.eligible[jb][a] {
						continue
					}
					seqA := append([]int(nil), st.order[a]...)
					seqB := append([]int(nil), st.order[b]...)
					seqA[i], seqB[k] = jb, ja
					if r := s.tryMove(st, a, b, seqA, seqB); r.ok && r.total < st.total-costEps {
						st.commit(a, b, seqA, seqB, r)
						return true
					}
				}
			}
		}
	}
	return false
}

// localSearch applies relocate and swap moves while one strictly lowers the
// weighted cost. It stops at the iteration cap, at the deadline, or when the
// context is cancelled, always leaving the best solution found so far in st.
// Cancellation is checked between iterations, never mid-move.
func (s *solver) localSearch(ctx context.Context, st *searchState, deadline time.Time) (iters int, timedOut, cancelled bool) {
	for {
		select {
		case <-ctx.Done():
			return iters, false, true
		default:
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return iters, true, false
		}
		if iters >= s.opts.IterationCap {
			return iters, false, false
		}
		if s.relocateSweep(st) {
			iters++
			continue
		}
		if s.swapSweep(st) {
			iters++
			continue
		}
		return iters, false, false
	}
}
