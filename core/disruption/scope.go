package disruption

import (
	"fmt"

	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/schedule"
)

// planIndex locates every scheduled job inside a committed plan.
type planIndex struct {
	routeOf map[string]int // job id -> route index
	posOf   map[string]int // job id -> position on its route
	techOf  map[string]int // technician id -> route index
}

func indexPlan(p model.Plan) planIndex {
	idx := planIndex{
		routeOf: map[string]int{},
		posOf:   map[string]int{},
		techOf:  map[string]int{},
	}
	for r, route := range p.Routes {
		idx.techOf[route.TechnicianID] = r
		for pos, stop := range route.Stops {
			idx.routeOf[stop.JobID] = r
			idx.posOf[stop.JobID] = pos
		}
	}
	return idx
}

// scope is the slice of the committed schedule one event may touch: per
// route, the first position allowed to move. Everything before it stays
// verbatim; everything from it on joins the affected-job set.
type scope struct {
	firstPos map[int]int
	jobIDs   map[string]bool
}

func newScope() scope {
	return scope{firstPos: map[int]int{}, jobIDs: map[string]bool{}}
}

// open marks route r movable from position pos, keeping the earliest
// opening when called twice, and folds the tail stops into the affected set.
func (sc scope) open(p model.Plan, r, pos int) {
	if cur, ok := sc.firstPos[r]; ok && cur <= pos {
		return
	}
	sc.firstPos[r] = pos
	for _, stop := range p.Routes[r].Stops[pos:] {
		sc.jobIDs[stop.JobID] = true
	}
}

// affected returns the scoped job ids in committed route order.
func (sc scope) affected(p model.Plan) []string {
	var out []string
	for r, route := range p.Routes {
		pos, ok := sc.firstPos[r]
		if !ok {
			continue
		}
		for _, stop := range route.Stops[pos:] {
			out = append(out, stop.JobID)
		}
	}
	return out
}

// scopeEvent computes the initial scope of the event against the committed
// plan. Insertions widen the scope later when a target route is picked.
func scopeEvent(snap schedule.Snapshot, ev model.DisruptionEvent) (scope, error) {
	sc := newScope()
	idx := indexPlan(snap.Plan)
	switch ev.Type {
	case model.DisruptionTrafficDelay:
		if r, ok := idx.routeOf[ev.JobID]; ok {
			sc.open(snap.Plan, r, idx.posOf[ev.JobID])
			return sc, nil
		}
		if r, ok := idx.techOf[ev.TechnicianID]; ok {
			sc.open(snap.Plan, r, 0)
			return sc, nil
		}
		return sc, nil

	case model.DisruptionCustomerReschedule:
		if r, ok := idx.routeOf[ev.JobID]; ok {
			sc.open(snap.Plan, r, idx.posOf[ev.JobID])
		}
		return sc, nil

	case model.DisruptionResourceUnavailable:
		if r, ok := idx.techOf[ev.TechnicianID]; ok {
			sc.open(snap.Plan, r, 0)
		}
		return sc, nil

	case model.DisruptionEmergencyInsertion:
		// Nothing committed is affected until an insertion point is chosen.
		return sc, nil

	case model.DisruptionWeather:
		jobSite := map[string]model.LatLng{}
		for _, j := range snap.Jobs {
			jobSite[j.ID] = j.Location
		}
		for r, route := range snap.Plan.Routes {
			for pos, stop := range route.Stops {
				site, ok := jobSite[stop.JobID]
				if ok && ev.Area.Contains(site) {
					sc.open(snap.Plan, r, pos)
					break
				}
			}
		}
		return sc, nil

	default:
		return sc, fmt.Errorf("disruption %s: unknown type %q", ev.ID, ev.Type)
	}
}
