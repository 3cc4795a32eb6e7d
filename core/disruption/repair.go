package disruption

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/schedule"
	"github.com/dispatchlab/fieldops/core/travel"
)

// Causes of a failed repair, coarse enough to map onto recommendations.
const (
	causeWindow      = "window"
	causeDelayCap    = "delay"
	causeShift       = "shift"
	causeTravel      = "travel"
	causeCapacity    = "capacity"
	causeBudget      = "budget"
	causeNoCandidate = "candidate"
)

// violation is the first hard bound a candidate repair breaks.
type violation struct {
	cause string
	jobID string
}

func (v violation) String() string {
	if v.jobID == "" {
		return v.cause
	}
	return fmt.Sprintf("%s (job %s)", v.cause, v.jobID)
}

// legKey addresses one travel leg of a committed route. Route heads use
// the "tech:" prefix so a job id can never collide with a technician id.
type legKey struct {
	from string
	to   string
}

func headKey(technicianID, jobID string) legKey {
	return legKey{from: "tech:" + technicianID, to: jobID}
}

// legSource resolves travel legs for rebuilt routes. Legs the committed
// plan already drove reuse their committed duration; anything else comes
// from one lazily fetched matrix over every site in the snapshot.
type legSource struct {
	est     travel.Estimator
	points  []model.LatLng
	techPt  map[string]int
	jobPt   map[string]int
	m       travel.Matrix
	fetched bool
}

func newLegSource(est travel.Estimator, snap schedule.Snapshot, extra []model.Job, now time.Time, maxAge time.Duration) *legSource {
	ls := &legSource{est: est, techPt: map[string]int{}, jobPt: map[string]int{}}
	for _, t := range snap.Technicians {
		ls.techPt[t.ID] = len(ls.points)
		ls.points = append(ls.points, t.EffectiveLocation(now, maxAge))
	}
	for _, j := range snap.Jobs {
		ls.jobPt[j.ID] = len(ls.points)
		ls.points = append(ls.points, j.Location)
	}
	for _, j := range extra {
		ls.jobPt[j.ID] = len(ls.points)
		ls.points = append(ls.points, j.Location)
	}
	return ls
}

func (ls *legSource) leg(ctx context.Context, from, to int) (time.Duration, error) {
	if !ls.fetched {
		m, err := ls.est.Matrix(ctx, ls.points)
		if err != nil {
			return 0, fmt.Errorf("repair travel matrix: %w", err)
		}
		ls.m = m
		ls.fetched = true
	}
	return ls.m.At(from, to), nil
}

func (ls *legSource) degraded() bool { return ls.fetched && ls.m.Degraded }

// editor performs all-or-nothing surgery on a copy of the committed plan.
// The committed snapshot itself is never written.
type editor struct {
	snap  schedule.Snapshot
	ev    model.DisruptionEvent
	prefs model.AdaptationPreferences
	cs    model.ConstraintSet
	sc    scope
	legs  *legSource

	plan     model.Plan // working copy
	techByID map[string]model.Technician
	jobByID  map[string]model.Job

	committedLeg   map[legKey]time.Duration
	committedStart map[string]time.Time
	committedBy    map[string]model.Assignment

	slowdown   float64 // weather travel multiplier for in-area legs
	reassigned int
	placed     map[string]bool // jobs lifted off the unassigned list
}

func newEditor(snap schedule.Snapshot, ev model.DisruptionEvent, prefs model.AdaptationPreferences, sc scope, legs *legSource) *editor {
	ed := &editor{
		snap:           snap,
		ev:             ev,
		prefs:          prefs,
		cs:             snap.Constraints,
		sc:             sc,
		legs:           legs,
		techByID:       map[string]model.Technician{},
		jobByID:        map[string]model.Job{},
		committedLeg:   map[legKey]time.Duration{},
		committedStart: map[string]time.Time{},
		committedBy:    map[string]model.Assignment{},
		slowdown:       1,
		placed:         map[string]bool{},
	}
	for _, t := range snap.Technicians {
		ed.techByID[t.ID] = t
	}
	for _, j := range snap.Jobs {
		ed.jobByID[j.ID] = j
	}
	ed.plan = clonePlan(snap.Plan)
	for _, route := range snap.Plan.Routes {
		prev := ""
		for _, stop := range route.Stops {
			if prev == "" {
				ed.committedLeg[headKey(route.TechnicianID, stop.JobID)] = stop.Travel
			} else {
				ed.committedLeg[legKey{from: prev, to: stop.JobID}] = stop.Travel
			}
			ed.committedStart[stop.JobID] = stop.Start
			ed.committedBy[stop.JobID] = stop
			prev = stop.JobID
		}
	}
	return ed
}

// clonePlan copies the route and stop slices so edits never alias the
// committed snapshot. Alternative slices stay shared; they are never
// mutated.
func clonePlan(p model.Plan) model.Plan {
	out := p
	out.Routes = make([]model.Route, len(p.Routes))
	for i, r := range p.Routes {
		out.Routes[i] = r
		out.Routes[i].Stops = append([]model.Assignment(nil), r.Stops...)
	}
	out.Unassigned = append([]model.UnassignedJob(nil), p.Unassigned...)
	return out
}

func (ed *editor) overtime() bool {
	return ed.cs.OvertimeAllowed || ed.prefs.AllowOvertime
}

// slowFor returns the travel multiplier for the leg ending at the job.
func (ed *editor) slowFor(job model.Job) float64 {
	if ed.slowdown > 1 && ed.ev.Area != nil && ed.ev.Area.Contains(job.Location) {
		return ed.slowdown
	}
	return 1
}

// rebuildTail re-times route r from position keepN on with the given job
// sequence. lead is extra travel time injected before the first rebuilt
// stop. The route is not committed; the caller decides what to do with
// the result.
func (ed *editor) rebuildTail(ctx context.Context, r, keepN int, tail []string, lead time.Duration) ([]model.Assignment, *violation) {
	route := ed.plan.Routes[r]
	tech := ed.techByID[route.TechnicianID]
	shift := ed.cs.ShiftFor(tech)
	if keepN+len(tail) > ed.cs.CapFor(tech) {
		return nil, &violation{cause: causeCapacity}
	}

	cursor := shift.Start
	prevKey := "tech:" + tech.ID
	prevPt := ed.legs.techPt[tech.ID]
	if keepN > 0 {
		last := route.Stops[keepN-1]
		cursor = last.Finish
		prevKey = last.JobID
		prevPt = ed.legs.jobPt[last.JobID]
	}
	cursor = cursor.Add(lead)

	stops := make([]model.Assignment, 0, len(tail))
	for _, jobID := range tail {
		job, ok := ed.jobByID[jobID]
		if !ok {
			return nil, &violation{cause: causeNoCandidate, jobID: jobID}
		}
		tt, known := ed.committedLeg[legKey{from: prevKey, to: jobID}]
		fromMatrix := false
		if !known {
			d, err := ed.legs.leg(ctx, prevPt, ed.legs.jobPt[jobID])
			if err != nil {
				return nil, &violation{cause: causeTravel, jobID: jobID}
			}
			tt, fromMatrix = d, true
		}
		if f := ed.slowFor(job); f > 1 {
			tt = time.Duration(float64(tt) * f)
		}
		if fromMatrix && ed.cs.MaxTravelTime > 0 && tt > ed.cs.MaxTravelTime {
			return nil, &violation{cause: causeTravel, jobID: jobID}
		}

		arrival := cursor.Add(tt)
		start := arrival
		if start.Before(job.Window.Start) {
			start = job.Window.Start
		}
		if !start.Before(job.Window.End) {
			return nil, &violation{cause: causeWindow, jobID: jobID}
		}
		if committed, ok := ed.committedStart[jobID]; ok && ed.prefs.MaxScheduleDelay > 0 {
			if slip := start.Sub(committed); slip > ed.prefs.MaxScheduleDelay {
				return nil, &violation{cause: causeDelayCap, jobID: jobID}
			}
		}
		finish := start.Add(job.Duration)
		if finish.After(shift.End) && !ed.overtime() {
			return nil, &violation{cause: causeShift, jobID: jobID}
		}

		stops = append(stops, model.Assignment{
			JobID:        jobID,
			TechnicianID: tech.ID,
			Arrival:      arrival,
			Start:        start,
			Finish:       finish,
			Travel:       tt,
		})
		cursor = finish
		prevKey = jobID
		prevPt = ed.legs.jobPt[jobID]
	}
	return stops, nil
}

// commitTail installs rebuilt stops on route r after the kept prefix.
func (ed *editor) commitTail(r, keepN int, stops []model.Assignment) {
	route := &ed.plan.Routes[r]
	route.Stops = append(route.Stops[:keepN:keepN], stops...)
}

// rebuildShedding rebuilds route r, shedding stops that no longer fit and
// moving them to other technicians within the reassignment budget.
func (ed *editor) rebuildShedding(ctx context.Context, r, keepN int, tail []string, lead time.Duration) *violation {
	var moved []string
	for {
		stops, v := ed.rebuildTail(ctx, r, keepN, tail, lead)
		if v == nil {
			ed.commitTail(r, keepN, stops)
			break
		}
		if v.cause != causeWindow && v.cause != causeShift && v.cause != causeDelayCap {
			return v
		}
		shed := -1
		for i, id := range tail {
			if id == v.jobID {
				shed = i
				break
			}
		}
		if shed < 0 {
			return v
		}
		moved = append(moved, tail[shed])
		tail = append(append([]string(nil), tail[:shed]...), tail[shed+1:]...)
	}

	excluded := ed.plan.Routes[r].TechnicianID
	for _, jobID := range moved {
		job := ed.jobByID[jobID]
		cands := ed.candidatesExcept(job, excluded)
		if v := ed.insertBest(ctx, job, cands, excluded); v != nil {
			return v
		}
	}
	return nil
}

// candidatesExcept lists the eligible technicians for the job minus the
// named one.
func (ed *editor) candidatesExcept(job model.Job, excludedID string) []model.Technician {
	cands := constraint.Candidates(job, ed.snap.Technicians, ed.cs)
	out := cands[:0]
	for _, t := range cands {
		if t.ID != excludedID {
			out = append(out, t)
		}
	}
	return out
}

// insertBest places the job at the cheapest feasible slot across the given
// technicians, measured by added route travel. Ties keep the first hit, so
// the scan order (ascending technician id, earliest position) decides.
// prevTech is the technician the job is leaving; a move to anyone else
// counts against the reassignment budget. Empty prevTech means the job was
// not scheduled before and no move is a reassignment.
func (ed *editor) insertBest(ctx context.Context, job model.Job, cands []model.Technician, prevTech string) *violation {
	if len(cands) == 0 {
		return &violation{cause: causeNoCandidate, jobID: job.ID}
	}

	type hit struct {
		r, pos int
		stops  []model.Assignment
		cost   time.Duration
	}
	var best *hit
	var firstCause *violation
	for _, tech := range cands {
		if prevTech != "" && tech.ID != prevTech && ed.reassigned >= ed.prefs.MaxReassignments {
			if firstCause == nil {
				firstCause = &violation{cause: causeBudget, jobID: job.ID}
			}
			continue
		}
		r := ed.routeIndexOf(tech.ID)
		if r < 0 {
			continue
		}
		route := ed.plan.Routes[r]
		minPos := 0
		if open, ok := ed.sc.firstPos[r]; ok {
			minPos = open
		}
		ids := stopIDs(route.Stops)
		oldTravel := tailTravel(route.Stops, minPos)
		for pos := minPos; pos <= len(ids); pos++ {
			tail := make([]string, 0, len(ids)-minPos+1)
			tail = append(tail, ids[minPos:pos]...)
			tail = append(tail, job.ID)
			tail = append(tail, ids[pos:]...)
			stops, v := ed.rebuildTail(ctx, r, minPos, tail, 0)
			if v != nil {
				if firstCause == nil {
					firstCause = v
				}
				continue
			}
			cost := sumTravel(stops) - oldTravel
			if best == nil || cost < best.cost {
				best = &hit{r: r, pos: pos, stops: stops, cost: cost}
			}
		}
	}
	if best == nil {
		if firstCause != nil {
			return &violation{cause: firstCause.cause, jobID: job.ID}
		}
		return &violation{cause: causeNoCandidate, jobID: job.ID}
	}

	wasOpen := false
	if _, ok := ed.sc.firstPos[best.r]; ok {
		wasOpen = true
	}
	minPos := 0
	if wasOpen {
		minPos = ed.sc.firstPos[best.r]
	}
	ed.commitTail(best.r, minPos, best.stops)
	if !wasOpen {
		if best.r < len(ed.snap.Plan.Routes) {
			ed.sc.open(ed.snap.Plan, best.r, best.pos)
		} else {
			ed.sc.firstPos[best.r] = 0
		}
	}
	ed.sc.jobIDs[job.ID] = true
	if prevTech != "" && ed.plan.Routes[best.r].TechnicianID != prevTech {
		ed.reassigned++
	}
	ed.placed[job.ID] = true
	return nil
}

// routeIndexOf finds the working-plan route of a technician, creating an
// empty one when the committed plan had none.
func (ed *editor) routeIndexOf(technicianID string) int {
	for i, r := range ed.plan.Routes {
		if r.TechnicianID == technicianID {
			return i
		}
	}
	if _, ok := ed.techByID[technicianID]; !ok {
		return -1
	}
	ed.plan.Routes = append(ed.plan.Routes, model.Route{TechnicianID: technicianID})
	return len(ed.plan.Routes) - 1
}

func stopIDs(stops []model.Assignment) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = s.JobID
	}
	return out
}

func sumTravel(stops []model.Assignment) time.Duration {
	var total time.Duration
	for _, s := range stops {
		total += s.Travel
	}
	return total
}

func tailTravel(stops []model.Assignment, from int) time.Duration {
	var total time.Duration
	for _, s := range stops[from:] {
		total += s.Travel
	}
	return total
}

// verify re-checks every hard bound on the routes the repair touched. It
// is the gate between the reoptimized and applied states.
func (ed *editor) verify() *violation {
	for r := 0; r < len(ed.plan.Routes); r++ {
		if _, touched := ed.sc.firstPos[r]; !touched {
			continue
		}
		route := ed.plan.Routes[r]
		tech, ok := ed.techByID[route.TechnicianID]
		if !ok || tech.Absent {
			if len(route.Stops) > 0 {
				return &violation{cause: causeNoCandidate, jobID: route.Stops[0].JobID}
			}
			continue
		}
		shift := ed.cs.ShiftFor(tech)
		if len(route.Stops) > ed.cs.CapFor(tech) {
			return &violation{cause: causeCapacity, jobID: route.TechnicianID}
		}
		prevFinish := shift.Start
		for i, stop := range route.Stops {
			job := ed.jobByID[stop.JobID]
			if ed.cs.SkillMatchRequired && !tech.HasSkills(job.Skills) {
				return &violation{cause: causeNoCandidate, jobID: stop.JobID}
			}
			if i > 0 && stop.Arrival.Before(prevFinish) {
				return &violation{cause: causeWindow, jobID: stop.JobID}
			}
			if stop.Start.Before(job.Window.Start) || !stop.Start.Before(job.Window.End) {
				return &violation{cause: causeWindow, jobID: stop.JobID}
			}
			if stop.Finish.After(shift.End) && !ed.overtime() {
				return &violation{cause: causeShift, jobID: stop.JobID}
			}
			prevFinish = stop.Finish
		}
	}
	return nil
}

// restoreUnchanged swaps rebuilt stops whose timeline came out identical
// back to their committed structs, keeping confidence and alternatives.
func (ed *editor) restoreUnchanged() {
	for r := 0; r < len(ed.plan.Routes); r++ {
		if _, touched := ed.sc.firstPos[r]; !touched {
			continue
		}
		route := &ed.plan.Routes[r]
		for i, stop := range route.Stops {
			committed, ok := ed.committedBy[stop.JobID]
			if ok && sameTimeline(stop, committed) {
				route.Stops[i] = committed
			}
		}
	}
}

// affectedIDs returns the scoped job ids in sorted order.
func (ed *editor) affectedIDs() []string {
	out := make([]string, 0, len(ed.sc.jobIDs))
	for id := range ed.sc.jobIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameTimeline(a, b model.Assignment) bool {
	return a.TechnicianID == b.TechnicianID &&
		a.Arrival.Equal(b.Arrival) &&
		a.Start.Equal(b.Start) &&
		a.Finish.Equal(b.Finish) &&
		a.Travel == b.Travel
}

// changes diffs the working plan against the committed one, job by job.
func (ed *editor) changes() []model.JobChange {
	after := map[string]model.Assignment{}
	var order []string
	for _, route := range ed.plan.Routes {
		for _, stop := range route.Stops {
			after[stop.JobID] = stop
		}
	}
	seen := map[string]bool{}
	for _, route := range ed.snap.Plan.Routes {
		for _, stop := range route.Stops {
			order = append(order, stop.JobID)
			seen[stop.JobID] = true
		}
	}
	for _, route := range ed.plan.Routes {
		for _, stop := range route.Stops {
			if !seen[stop.JobID] {
				order = append(order, stop.JobID)
				seen[stop.JobID] = true
			}
		}
	}

	var out []model.JobChange
	for _, jobID := range order {
		before, hadBefore := ed.committedBy[jobID]
		now, hasAfter := after[jobID]
		switch {
		case hadBefore && hasAfter:
			if sameTimeline(before, now) {
				continue
			}
			b, a := before, now
			out = append(out, model.JobChange{JobID: jobID, Before: &b, After: &a})
		case hadBefore:
			b := before
			out = append(out, model.JobChange{JobID: jobID, Before: &b})
		case hasAfter:
			a := now
			out = append(out, model.JobChange{JobID: jobID, After: &a})
		}
	}
	return out
}
