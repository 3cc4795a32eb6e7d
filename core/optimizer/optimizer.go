// Package optimizer builds technician routes with deterministic greedy
// insertion and improves them with a bounded relocate/swap local search.
package optimizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/logger"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/travel"
)

// AlgorithmVersion tags persisted runs with the planning algorithm in use.
const AlgorithmVersion = "greedy-ls/1"

// Options tune one optimization pass.
type Options struct {
	Budget         time.Duration // wall-clock budget, default 30s
	IterationCap   int           // local-search move cap, default 2000
	LocationMaxAge time.Duration // ping staleness bound, default 5m
	Alternatives   int           // runner-up candidates kept per assignment, default 3
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = 30 * time.Second
	}
	if o.IterationCap <= 0 {
		o.IterationCap = 2000
	}
	if o.LocationMaxAge <= 0 {
		o.LocationMaxAge = 5 * time.Minute
	}
	if o.Alternatives <= 0 {
		o.Alternatives = 3
	}
	return o
}

// Problem is an immutable snapshot of one tenant's scheduling day.
type Problem struct {
	TenantID    string
	Jobs        []model.Job
	Technicians []model.Technician
	Constraints model.ConstraintSet
	Horizon     model.TimeWindow // optional planning horizon filter
	Now         time.Time        // planning clock; zero means wall clock
}

// Hash fingerprints the problem input for idempotency audits.
func (p Problem) Hash() string {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of one Optimize call.
type Result struct {
	Plan       model.Plan
	Iterations int  // local-search moves applied
	Cancelled  bool // true when preempted; the plan is the best found so far
}

// Engine builds and locally improves technician routes.
type Engine struct {
	est  travel.Estimator
	log  logger.Logger
	opts Options
}

// New returns an Engine backed by the given travel estimator.
func New(est travel.Estimator, log logger.Logger, opts Options) *Engine {
	return &Engine{est: est, log: log, opts: opts.withDefaults()}
}

// Optimize plans the given problem. Identical inputs produce identical
// plans: every tie is broken by priority, window start, then lexicographic
// id. Unschedulable jobs are reported per job, never silently dropped.
func (e *Engine) Optimize(ctx context.Context, p Problem) (Result, error) {
	started := time.Now()
	now := p.Now
	if now.IsZero() {
		now = started
	}

	cs, err := constraint.ValidateSet(p.Constraints)
	if err != nil {
		runsTotal.WithLabelValues("rejected").Inc()
		return Result{}, err
	}
	if err := constraint.ValidateProblem(p.Jobs, p.Technicians, cs); err != nil {
		runsTotal.WithLabelValues("rejected").Inc()
		return Result{}, err
	}

	techs := append([]model.Technician(nil), p.Technicians...)
	sort.Slice(techs, func(i, j int) bool { return techs[i].ID < techs[j].ID })

	// Only open jobs are planned; completed and cancelled ones belong to
	// the archive. Jobs outside the horizon are reported, not dropped.
	var jobs []model.Job
	var unassigned []model.UnassignedJob
	for _, j := range p.Jobs {
		if !j.Open() {
			continue
		}
		if !p.Horizon.IsZero() && !j.Window.Overlaps(p.Horizon) {
			unassigned = append(unassigned, model.UnassignedJob{
				JobID:  j.ID,
				Reason: model.ReasonNoCandidate,
				Detail: "time window outside the planning horizon",
			})
			continue
		}
		jobs = append(jobs, j)
	}

	points := make([]model.LatLng, 0, len(techs)+len(jobs))
	for _, t := range techs {
		points = append(points, t.EffectiveLocation(now, e.opts.LocationMaxAge))
	}
	for _, j := range jobs {
		points = append(points, j.Location)
	}
	matrix, err := e.est.Matrix(ctx, points, points)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	eligible := make([][]bool, len(jobs))
	techIdx := make(map[string]int, len(techs))
	for i, t := range techs {
		techIdx[t.ID] = i
	}
	for j, job := range jobs {
		eligible[j] = make([]bool, len(techs))
		for _, c := range constraint.Candidates(job, techs, cs) {
			eligible[j][techIdx[c.ID]] = true
		}
	}

	s := newSolver(jobs, techs, cs, matrix, eligible, e.opts)
	deadline := started.Add(e.opts.Budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	seed := s.greedy(deadline)
	st := s.newSearchState(seed.order)
	iters, lsTimedOut, cancelled := s.localSearch(ctx, st, deadline)

	plan := s.assemble(p.TenantID, st, seed, now)
	plan.Unassigned = append(plan.Unassigned, unassigned...)
	sort.Slice(plan.Unassigned, func(i, j int) bool { return plan.Unassigned[i].JobID < plan.Unassigned[j].JobID })
	plan.Degraded = matrix.Degraded
	plan.TimedOut = seed.timedOut || lsTimedOut

	status := "completed"
	if cancelled {
		status = "cancelled"
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(time.Since(started).Seconds())
	searchIterations.Observe(float64(iters))
	for _, u := range plan.Unassigned {
		unscheduledTotal.WithLabelValues(string(u.Reason)).Inc()
	}

	e.log.Infof("planned tenant %s: %d scheduled, %d unscheduled, %d moves in %s",
		p.TenantID, plan.Assigned(), len(plan.Unassigned), iters, time.Since(started))
	e.log.Debugw("optimization finished", map[string]any{
		"tenant":    p.TenantID,
		"objective": plan.Objective,
		"degraded":  plan.Degraded,
		"timed_out": plan.TimedOut,
		"cancelled": cancelled,
	})

	return Result{Plan: plan, Iterations: iters, Cancelled: cancelled}, nil
}

// seeded is the greedy construction output.
type seeded struct {
	order      [][]int
	unassigned []model.UnassignedJob
	alts       map[string][]model.Alternative
	timedOut   bool
}

type techOption struct {
	tech int
	cost float64
}

// greedy inserts jobs one by one, highest priority first, each into the
// cheapest feasible position across all candidate technicians. Ties fall to
// the lowest technician id, then the earliest position.
func (s *solver) greedy(deadline time.Time) seeded {
	out := seeded{
		order: make([][]int, len(s.techs)),
		alts:  make(map[string][]model.Alternative),
	}
	idx := make([]int, len(s.jobs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ja, jb := s.jobs[idx[a]], s.jobs[idx[b]]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		if !ja.Window.Start.Equal(jb.Window.Start) {
			return ja.Window.Start.Before(jb.Window.Start)
		}
		return ja.ID < jb.ID
	})

	for _, j := range idx {
		if !deadline.IsZero() && time.Now().After(deadline) {
			out.timedOut = true
			out.unassigned = append(out.unassigned, model.UnassignedJob{
				JobID:  s.jobs[j].ID,
				Reason: model.ReasonNoSlot,
				Detail: "time budget exhausted before placement",
			})
			continue
		}
		cands := s.candidateIdx(j)
		if len(cands) == 0 {
			out.unassigned = append(out.unassigned, model.UnassignedJob{
				JobID:  s.jobs[j].ID,
				Reason: model.ReasonNoCandidate,
				Detail: "no technician passes the skill, presence and capacity checks",
			})
			continue
		}
		var best insertion
		var options []techOption
		for _, t := range cands {
			ins, _ := s.bestInsertion(j, t, out.order[t])
			if !ins.ok {
				continue
			}
			options = append(options, techOption{tech: t, cost: ins.cost})
			if !best.ok || ins.cost < best.cost-costEps {
				best = ins
			}
		}
		if !best.ok {
			code := s.classifyRejection(j, cands, out.order)
			out.unassigned = append(out.unassigned, model.UnassignedJob{
				JobID:  s.jobs[j].ID,
				Reason: code,
				Detail: rejectionDetail(code),
			})
			continue
		}
		out.order[best.tech] = insertAt(out.order[best.tech], j, best.pos)
		if alts := s.runnerUps(best, options); len(alts) > 0 {
			out.alts[s.jobs[j].ID] = alts
		}
	}
	return out
}

// runnerUps ranks the losing candidate technicians by marginal cost.
func (s *solver) runnerUps(best insertion, options []techOption) []model.Alternative {
	sort.SliceStable(options, func(a, b int) bool { return options[a].cost < options[b].cost-costEps })
	var out []model.Alternative
	for _, o := range options {
		if o.tech == best.tech {
			continue
		}
		out = append(out, model.Alternative{
			TechnicianID: s.techs[o.tech].ID,
			CostDelta:    o.cost - best.cost,
		})
		if len(out) == s.opts.Alternatives {
			break
		}
	}
	return out
}

func rejectionDetail(code model.ReasonCode) string {
	switch code {
	case model.ReasonTravelExceeded:
		return "every open position breaks the max travel bound"
	case model.ReasonNoSlot:
		return "no position fits inside working hours"
	default:
		return "no feasible position on any candidate route"
	}
}

// assemble turns the solved state into the public plan. Routes come out in
// technician id order; one route is emitted per technician, empty or not.
func (s *solver) assemble(tenantID string, st *searchState, seed seeded, now time.Time) model.Plan {
	plan := model.Plan{
		TenantID:   tenantID,
		CreatedAt:  now,
		Routes:     make([]model.Route, len(s.techs)),
		Unassigned: seed.unassigned,
		Objective:  st.total,
	}
	for t := range s.techs {
		stops := append([]model.Assignment(nil), st.evals[t].stops...)
		for i := range stops {
			stops[i].Alternatives = seed.alts[stops[i].JobID]
		}
		plan.Routes[t] = model.Route{TechnicianID: s.techs[t].ID, Stops: stops}
	}
	return plan
}
