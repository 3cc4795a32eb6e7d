// Package disruption adapts a committed schedule to mid-day events. Each
// event walks the received, scoped, reoptimized, applied, notified
// pipeline; repairs are all-or-nothing and assignments outside the
// computed scope are returned byte for byte as committed.
package disruption

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/logger"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/schedule"
	"github.com/dispatchlab/fieldops/core/score"
	"github.com/dispatchlab/fieldops/core/travel"
)

// ErrNoFeasibleAdaptation marks repairs rejected for infeasibility. The
// rejection itself travels in the AdaptationResult, not as an error.
var ErrNoFeasibleAdaptation = errors.New("no feasible adaptation")

// Advisory is the weather signal consulted while scoping weather events.
type Advisory struct {
	Adverse  bool
	Slowdown float64 // travel multiplier, >= 1 when adverse
}

// WeatherAdvisor supplies current conditions for an area. Failures degrade
// to no adverse weather; they never fail the adaptation.
type WeatherAdvisor interface {
	Advise(ctx context.Context, area model.Area) (Advisory, error)
}

// Option tunes a Handler.
type Option func(*Handler)

func WithWeather(w WeatherAdvisor) Option {
	return func(h *Handler) { h.weather = w }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLocationMaxAge(d time.Duration) Option {
	return func(h *Handler) { h.maxAge = d }
}

// Handler runs disruptions through the adaptation pipeline.
type Handler struct {
	est     travel.Estimator
	scorer  *score.Scorer
	weather WeatherAdvisor
	log     logger.Logger
	now     func() time.Time
	maxAge  time.Duration
}

func New(est travel.Estimator, scorer *score.Scorer, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		est:    est,
		scorer: scorer,
		log:    log,
		now:    time.Now,
		maxAge: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle adapts the committed snapshot to one event. It returns the
// successor snapshot (not yet committed) and the outcome; when the result
// is Rejected the input snapshot comes back unchanged. Errors are reserved
// for invalid input and provider failure, never for infeasibility.
func (h *Handler) Handle(ctx context.Context, snap schedule.Snapshot, ev model.DisruptionEvent, prefs model.AdaptationPreferences) (schedule.Snapshot, model.AdaptationResult, error) {
	result := model.AdaptationResult{DisruptionID: ev.ID, State: model.DisruptionReceived}
	if err := ev.Validate(); err != nil {
		return snap, result, err
	}
	if err := prefs.Validate(); err != nil {
		return snap, result, fmt.Errorf("disruption %s: %w", ev.ID, err)
	}
	if ev.TenantID != snap.TenantID {
		return snap, result, fmt.Errorf("disruption %s: tenant %s does not match snapshot tenant %s", ev.ID, ev.TenantID, snap.TenantID)
	}
	if err := checkRefs(snap, ev); err != nil {
		return snap, result, err
	}

	sc, err := scopeEvent(snap, ev)
	if err != nil {
		eventsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		return snap, result, err
	}
	h.step(ev, &result.State, model.DisruptionScoped)

	legs := newLegSource(h.est, snap, extraJobs(ev), h.now(), h.maxAge)
	ed := newEditor(snap, ev, prefs, sc, legs)

	v, err := h.repair(ctx, ed)
	if err != nil {
		eventsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		return snap, result, err
	}
	if v == nil {
		v = ed.verify()
	}
	if v != nil {
		h.step(ev, &result.State, model.DisruptionRejected)
		result.Reason = fmt.Sprintf("%s: %s", ErrNoFeasibleAdaptation.Error(), v)
		result.Recommendations = recommend(ed, v)
		eventsTotal.WithLabelValues(string(ev.Type), "rejected").Inc()
		h.log.Warnf("disruption %s rejected: %s", ev.ID, v)
		return snap, result, nil
	}
	h.step(ev, &result.State, model.DisruptionReoptimized)

	if ed.legs.degraded() {
		ed.plan.Degraded = true
	}
	ed.restoreUnchanged()
	changes := ed.changes()
	h.rescore(ed)

	result.Affected = ed.affectedIDs()
	result.Changes = changes
	for _, c := range changes {
		if c.Reassigned() {
			result.Reassignments++
		}
		if d := c.Delay(); d > result.MaxDelay {
			result.MaxDelay = d
		}
	}
	result.Impact = h.scorer.Impact(changes, snap.Technicians)
	result.Reason = applyReason(ev, changes)
	h.step(ev, &result.State, model.DisruptionApplied)
	eventsTotal.WithLabelValues(string(ev.Type), "applied").Inc()
	impactScore.Observe(result.Impact)
	reassignments.Observe(float64(result.Reassignments))
	h.log.Infof("disruption %s applied: %d changes, %d reassignments, impact %.3f",
		ev.ID, len(changes), result.Reassignments, result.Impact)

	return h.successor(snap, ed), result, nil
}

// step advances the pipeline state, guarding against illegal transitions.
func (h *Handler) step(ev model.DisruptionEvent, cur *model.DisruptionState, next model.DisruptionState) {
	if !cur.CanTransition(next) {
		h.log.Errorf("disruption %s: illegal transition %s -> %s", ev.ID, *cur, next)
		return
	}
	*cur = next
	h.log.Debugf("disruption %s: %s", ev.ID, next)
}

// repair dispatches the event to its type-specific strategy. A violation
// means the schedule cannot absorb the event under the given preferences.
func (h *Handler) repair(ctx context.Context, ed *editor) (*violation, error) {
	switch ed.ev.Type {
	case model.DisruptionTrafficDelay:
		return h.repairRetime(ctx, ed, ed.ev.Delay), nil

	case model.DisruptionWeather:
		slow, degraded := h.effectiveSlowdown(ctx, ed.ev)
		if degraded {
			ed.plan.Degraded = true
		}
		if slow <= 1 {
			return nil, nil
		}
		ed.slowdown = slow
		return h.repairRetime(ctx, ed, 0), nil

	case model.DisruptionCustomerReschedule:
		return h.repairReschedule(ctx, ed), nil

	case model.DisruptionEmergencyInsertion:
		return h.repairEmergency(ctx, ed), nil

	case model.DisruptionResourceUnavailable:
		return h.repairWithdrawal(ctx, ed), nil

	default:
		return nil, fmt.Errorf("disruption %s: unknown type %q", ed.ev.ID, ed.ev.Type)
	}
}

// repairRetime pushes the affected route tails through the delay or
// slowdown, shedding stops to other technicians when they no longer fit.
func (h *Handler) repairRetime(ctx context.Context, ed *editor, lead time.Duration) *violation {
	for r := 0; r < len(ed.plan.Routes); r++ {
		pos, ok := ed.sc.firstPos[r]
		if !ok {
			continue
		}
		ids := stopIDs(ed.plan.Routes[r].Stops)
		if pos >= len(ids) {
			continue
		}
		if v := ed.rebuildShedding(ctx, r, pos, ids[pos:], lead); v != nil {
			return v
		}
	}
	return nil
}

// repairReschedule moves the referenced job to its replacement window,
// trying its current technician first when preferred.
func (h *Handler) repairReschedule(ctx context.Context, ed *editor) *violation {
	ev := ed.ev
	job := ed.jobByID[ev.JobID]
	job.Window = *ev.NewWindow
	ed.jobByID[ev.JobID] = job

	prevTech := ""
	if committed, had := ed.committedBy[ev.JobID]; had {
		prevTech = committed.TechnicianID
		idx := indexPlan(ed.snap.Plan)
		r, pos := idx.routeOf[ev.JobID], idx.posOf[ev.JobID]
		rest := stopIDs(ed.plan.Routes[r].Stops)[pos+1:]
		if v := ed.rebuildShedding(ctx, r, pos, rest, 0); v != nil {
			return v
		}
	}

	cands := constraint.Candidates(job, ed.snap.Technicians, ed.cs)
	if ed.prefs.PreferSameTechnician && prevTech != "" {
		for _, t := range cands {
			if t.ID == prevTech {
				if v := ed.insertBest(ctx, job, []model.Technician{t}, prevTech); v == nil {
					return nil
				}
				break
			}
		}
	}
	return ed.insertBest(ctx, job, cands, prevTech)
}

// repairEmergency inserts the new job at the cheapest feasible slot.
func (h *Handler) repairEmergency(ctx context.Context, ed *editor) *violation {
	job := *ed.ev.NewJob
	if job.TenantID == "" {
		job.TenantID = ed.ev.TenantID
	}
	ed.jobByID[job.ID] = job
	cands := constraint.Candidates(job, ed.snap.Technicians, ed.cs)
	return ed.insertBest(ctx, job, cands, "")
}

// repairWithdrawal empties the unavailable technician's route and moves
// every stop elsewhere, each counting against the reassignment budget.
func (h *Handler) repairWithdrawal(ctx context.Context, ed *editor) *violation {
	ev := ed.ev
	t, ok := ed.techByID[ev.TechnicianID]
	if ok {
		t.Absent = true
		ed.techByID[ev.TechnicianID] = t
	}
	idx := indexPlan(ed.snap.Plan)
	r, scheduled := idx.techOf[ev.TechnicianID]
	if !scheduled {
		return nil
	}
	ids := stopIDs(ed.plan.Routes[r].Stops)
	ed.commitTail(r, 0, nil)
	for _, jobID := range ids {
		job := ed.jobByID[jobID]
		if v := ed.insertBest(ctx, job, ed.candidatesExcept(job, ev.TechnicianID), ev.TechnicianID); v != nil {
			return v
		}
	}
	return nil
}

// effectiveSlowdown merges the reported slowdown with the advisor's view.
// Advisor failure degrades to the event's own figure.
func (h *Handler) effectiveSlowdown(ctx context.Context, ev model.DisruptionEvent) (float64, bool) {
	slow := ev.Slowdown
	if h.weather == nil {
		return slow, false
	}
	adv, err := h.weather.Advise(ctx, *ev.Area)
	if err != nil {
		h.log.Warnf("disruption %s: weather advisor failed, assuming no adverse weather: %v", ev.ID, err)
		return slow, true
	}
	if adv.Adverse && adv.Slowdown > slow {
		slow = adv.Slowdown
	}
	return slow, false
}

// rescore refreshes the confidence of every affected stop and the plan
// mean. Stops outside the scope keep their committed score.
func (h *Handler) rescore(ed *editor) {
	for r := range ed.plan.Routes {
		route := &ed.plan.Routes[r]
		tech := ed.techByID[route.TechnicianID]
		shift := ed.cs.ShiftFor(tech)
		for i := range route.Stops {
			stop := &route.Stops[i]
			if !ed.sc.jobIDs[stop.JobID] {
				continue
			}
			var slack time.Duration
			if i+1 < len(route.Stops) {
				next := route.Stops[i+1]
				slack = next.Start.Sub(stop.Finish.Add(next.Travel))
			} else if !shift.IsZero() {
				slack = shift.End.Sub(stop.Finish)
			}
			job := ed.jobByID[stop.JobID]
			stop.Confidence = h.scorer.Confidence(slack, score.SkillMatch(tech, job.Skills), h.scorer.OnTime(tech.ID), ed.plan.Degraded)
		}
	}
	count := 0
	sum := 0.0
	for _, route := range ed.plan.Routes {
		for _, stop := range route.Stops {
			sum += stop.Confidence
			count++
		}
	}
	if count > 0 {
		ed.plan.Confidence = sum / float64(count)
	}
}

// successor assembles the snapshot the caller should commit.
func (h *Handler) successor(snap schedule.Snapshot, ed *editor) schedule.Snapshot {
	next := snap
	next.Plan = ed.plan
	next.Plan.CreatedAt = h.now()

	if len(ed.placed) > 0 {
		kept := next.Plan.Unassigned[:0:0]
		for _, u := range next.Plan.Unassigned {
			if !ed.placed[u.JobID] {
				kept = append(kept, u)
			}
		}
		next.Plan.Unassigned = kept
	}

	next.Jobs = append([]model.Job(nil), snap.Jobs...)
	switch ed.ev.Type {
	case model.DisruptionCustomerReschedule:
		for i, j := range next.Jobs {
			if j.ID == ed.ev.JobID {
				next.Jobs[i].Window = *ed.ev.NewWindow
			}
		}
	case model.DisruptionEmergencyInsertion:
		next.Jobs = append(next.Jobs, ed.jobByID[ed.ev.NewJob.ID])
	case model.DisruptionResourceUnavailable:
		next.Technicians = append([]model.Technician(nil), snap.Technicians...)
		for i, t := range next.Technicians {
			if t.ID == ed.ev.TechnicianID {
				next.Technicians[i].Absent = true
			}
		}
	}
	return next
}

// extraJobs returns event-borne jobs that need travel-matrix points.
func extraJobs(ev model.DisruptionEvent) []model.Job {
	if ev.Type == model.DisruptionEmergencyInsertion && ev.NewJob != nil {
		return []model.Job{*ev.NewJob}
	}
	return nil
}

// checkRefs resolves the event's job and technician references against the
// snapshot before any repair work starts.
func checkRefs(snap schedule.Snapshot, ev model.DisruptionEvent) error {
	jobExists := func(id string) bool {
		for _, j := range snap.Jobs {
			if j.ID == id {
				return true
			}
		}
		return false
	}
	techExists := func(id string) bool {
		for _, t := range snap.Technicians {
			if t.ID == id {
				return true
			}
		}
		return false
	}
	switch ev.Type {
	case model.DisruptionTrafficDelay:
		if ev.JobID != "" && !jobExists(ev.JobID) {
			return fmt.Errorf("disruption %s: job %s not in snapshot", ev.ID, ev.JobID)
		}
		if ev.JobID == "" && !techExists(ev.TechnicianID) {
			return fmt.Errorf("disruption %s: technician %s not in snapshot", ev.ID, ev.TechnicianID)
		}
	case model.DisruptionCustomerReschedule:
		if !jobExists(ev.JobID) {
			return fmt.Errorf("disruption %s: job %s not in snapshot", ev.ID, ev.JobID)
		}
	case model.DisruptionResourceUnavailable:
		if !techExists(ev.TechnicianID) {
			return fmt.Errorf("disruption %s: technician %s not in snapshot", ev.ID, ev.TechnicianID)
		}
	case model.DisruptionEmergencyInsertion:
		if jobExists(ev.NewJob.ID) {
			return fmt.Errorf("disruption %s: job %s already in snapshot", ev.ID, ev.NewJob.ID)
		}
	}
	return nil
}

// applyReason summarises a successful adaptation.
func applyReason(ev model.DisruptionEvent, changes []model.JobChange) string {
	if len(changes) == 0 {
		return fmt.Sprintf("%s absorbed: no scheduled assignment affected", ev.Type)
	}
	return fmt.Sprintf("%s absorbed with %d schedule changes", ev.Type, len(changes))
}

// recommend maps the blocking violation onto operator actions.
func recommend(ed *editor, v *violation) []string {
	set := map[string]bool{}
	switch v.cause {
	case causeWindow:
		set["negotiate a wider service window for the affected jobs"] = true
	case causeShift:
		set["extend working hours"] = true
		if !ed.overtime() {
			set["allow overtime for the affected technicians"] = true
		}
	case causeDelayCap:
		set["raise the max schedule delay"] = true
	case causeBudget:
		set["raise the max reassignments cap"] = true
	case causeTravel:
		set["relax the max travel time bound"] = true
	case causeCapacity, causeNoCandidate:
		set["add on-call capacity"] = true
		if ed.cs.SkillMatchRequired {
			set["widen the eligible skill pool"] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
