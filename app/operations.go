package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apischedule "github.com/dispatchlab/fieldops/api/schedule"
	"github.com/dispatchlab/fieldops/core/analytics"
	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/events"
	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/monitoring"
	"github.com/dispatchlab/fieldops/core/notify"
	"github.com/dispatchlab/fieldops/core/optimizer"
	"github.com/dispatchlab/fieldops/core/runstore"
	"github.com/dispatchlab/fieldops/core/schedule"
)

const (
	// preemptWait bounds how long a high-severity adaptation waits for a
	// preempted batch run to vacate the tenant slot.
	preemptWait = 2 * time.Second

	// historyWindow is the lookback used when refreshing per-technician
	// on-time rates for the confidence scorer.
	historyWindow = 30 * 24 * time.Hour
)

// Optimize runs a full planning pass for the tenant and commits the
// resulting schedule. Only one mutating run per tenant is admitted at a
// time; concurrent callers fail with schedule.ErrTenantBusy.
func (s *Service) Optimize(ctx context.Context, req apischedule.OptimizeRequest) (model.Plan, error) {
	cs := constraint.DefaultSet()
	if req.Constraints != nil {
		validated, err := constraint.ValidateSet(*req.Constraints)
		if err != nil {
			return model.Plan{}, err
		}
		cs = validated
	}
	jobs := jobsForTenant(req.Jobs, req.TenantID)
	techs := s.locs.Stamp(techsForTenant(req.Technicians, req.TenantID))
	var horizon model.TimeWindow
	if req.Horizon != nil {
		horizon = *req.Horizon
	}

	now := time.Now().UTC()
	problem := optimizer.Problem{
		TenantID:    req.TenantID,
		Jobs:        jobs,
		Technicians: techs,
		Constraints: cs,
		Horizon:     horizon,
		Now:         now,
	}

	runID := "run-" + uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.registry.Acquire(runID, req.TenantID, model.TriggerBatch, cancel); err != nil {
		return model.Plan{}, err
	}
	defer s.registry.Release(runID)

	run := model.Run{
		ID:          runID,
		TenantID:    req.TenantID,
		Trigger:     model.TriggerBatch,
		Status:      model.RunRunning,
		StartedAt:   now,
		InputHash:   problem.Hash(),
		Algorithm:   optimizer.AlgorithmVersion,
		Jobs:        len(jobs),
		Technicians: len(techs),
		SkillDemand: skillDemand(jobs),
	}
	s.saveRun(runstore.Record{Run: run})
	s.log.Infof("run %s started for tenant %s (%d jobs, %d technicians)", runID, req.TenantID, len(jobs), len(techs))

	result, err := s.engine.Optimize(runCtx, problem)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
		s.saveRun(runstore.Record{Run: run})
		s.finishRun(run, model.Plan{})
		return model.Plan{}, err
	}

	plan := result.Plan
	plan.RunID = runID
	s.scorer.ScorePlan(&plan, jobs, techs, cs)
	run.Assigned = plan.Assigned()
	run.Unassigned = len(plan.Unassigned)
	run.Objective = plan.Objective

	if result.Cancelled {
		// A cancelled run reports its best plan so far but never commits.
		run.Status = model.RunCancelled
		s.saveRun(runstore.Record{Run: run})
		s.finishRun(run, plan)
		s.log.Warnf("run %s cancelled after %d iterations", runID, result.Iterations)
		return plan, nil
	}

	run.Status = model.RunCompleted
	s.snaps.Commit(schedule.Snapshot{
		TenantID:    req.TenantID,
		Plan:        plan,
		Jobs:        jobs,
		Technicians: techs,
		Constraints: cs,
	})
	s.saveRun(runstore.Record{Run: run, Plan: plan})
	s.finishRun(run, plan)
	s.log.Infof("run %s completed: %d assigned, %d unassigned, confidence %.2f", runID, run.Assigned, run.Unassigned, plan.Confidence)
	go s.refreshHistory(req.TenantID)
	return plan, nil
}

// Adapt repairs the tenant's committed schedule after a disruption. High
// severity events preempt an in-flight batch run for the tenant; lower
// severities fail busy instead of waiting.
func (s *Service) Adapt(ctx context.Context, ev model.DisruptionEvent, prefs model.AdaptationPreferences) (model.AdaptationResult, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	preempted := false
	if ev.Severity.Preempts() {
		if runID, ok := s.registry.Preempt(ev.TenantID); ok {
			preempted = true
			s.log.Warnf("disruption %s preempted run %s", ev.ID, runID)
		}
	}

	adaptID := "adapt-" + uuid.NewString()
	adaptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.acquire(adaptID, ev.TenantID, cancel, preempted); err != nil {
		return model.AdaptationResult{}, err
	}
	defer s.registry.Release(adaptID)

	snap, ok := s.snaps.Get(ev.TenantID)
	if !ok {
		return model.AdaptationResult{}, fmt.Errorf("tenant %s: %w", ev.TenantID, schedule.ErrNoSchedule)
	}

	started := time.Now().UTC()
	next, result, err := s.adapter.Handle(adaptCtx, snap, ev, prefs)
	if err != nil {
		return result, err
	}
	if result.State == model.DisruptionRejected {
		s.finishAdaptation(ev, result, time.Since(started))
		s.log.Infof("disruption %s rejected: %s", ev.ID, result.Reason)
		return result, nil
	}

	committed, err := s.snaps.Swap(next)
	if err != nil {
		return result, fmt.Errorf("commit adaptation for disruption %s: %w", ev.ID, err)
	}
	if prefs.Notify {
		s.sendNotices(ev, &result, committed.CommittedAt)
	}

	run := model.Run{
		ID:          adaptID,
		TenantID:    ev.TenantID,
		Trigger:     model.TriggerDisruption,
		Status:      model.RunCompleted,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
		Algorithm:   optimizer.AlgorithmVersion,
		Jobs:        len(committed.Jobs),
		Technicians: len(committed.Technicians),
		Assigned:    committed.Plan.Assigned(),
		Unassigned:  len(committed.Plan.Unassigned),
		Objective:   committed.Plan.Objective,
	}
	s.saveRun(runstore.Record{Run: run, Plan: committed.Plan})
	s.finishRun(run, committed.Plan)
	s.finishAdaptation(ev, result, time.Since(started))
	s.log.Infof("disruption %s %s: %d reassignments, max delay %s, schedule v%d", ev.ID, result.State, result.Reassignments, result.MaxDelay, committed.Version)
	go s.refreshHistory(ev.TenantID)
	return result, nil
}

// UpdateLocation records a technician position report. It never touches the
// committed schedule; freshness is evaluated when plans are built.
func (s *Service) UpdateLocation(ping model.LocationPing) error {
	if ping.At.IsZero() {
		ping.At = time.Now().UTC()
	}
	if err := s.locs.Set(ping); err != nil {
		return err
	}
	s.bus.Publish(events.LocationEvent{Ping: ping})
	return nil
}

// CancelRun cancels the in-flight run cooperatively. The run unwinds on its
// own context and records itself as cancelled; committed schedules are
// never rolled back.
func (s *Service) CancelRun(runID string) error {
	return s.registry.Cancel(runID)
}

// acquire claims the tenant slot. When wait is set the caller just
// preempted a batch run, so busy errors are retried briefly while the
// victim vacates the slot.
func (s *Service) acquire(runID, tenantID string, cancel context.CancelFunc, wait bool) error {
	err := s.registry.Acquire(runID, tenantID, model.TriggerDisruption, cancel)
	if err == nil || !wait {
		return err
	}
	deadline := time.Now().Add(preemptWait)
	for errors.Is(err, schedule.ErrTenantBusy) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		err = s.registry.Acquire(runID, tenantID, model.TriggerDisruption, cancel)
	}
	return err
}

// sendNotices tells each technician whose route changed. Delivery is fire
// and forget; failures are logged and counted, never propagated.
func (s *Service) sendNotices(ev model.DisruptionEvent, result *model.AdaptationResult, effectiveAt time.Time) {
	changed := map[string][]string{}
	for _, c := range result.Changes {
		if c.Before != nil {
			changed[c.Before.TechnicianID] = append(changed[c.Before.TechnicianID], c.JobID)
		}
		if c.After != nil && (c.Before == nil || c.After.TechnicianID != c.Before.TechnicianID) {
			changed[c.After.TechnicianID] = append(changed[c.After.TechnicianID], c.JobID)
		}
	}
	techIDs := make([]string, 0, len(changed))
	for id := range changed {
		techIDs = append(techIDs, id)
	}
	sort.Strings(techIDs)
	for _, techID := range techIDs {
		jobIDs := changed[techID]
		sort.Strings(jobIDs)
		attempts, err := s.notifier.Notify(context.Background(), notify.Notice{
			TenantID:     ev.TenantID,
			TechnicianID: techID,
			DisruptionID: ev.ID,
			Message:      fmt.Sprintf("schedule updated after %s: %d stop(s) changed", ev.Type, len(jobIDs)),
			ChangedJobs:  jobIDs,
			EffectiveAt:  effectiveAt,
		})
		if err != nil {
			s.log.Warnf("notify technician %s: %v", techID, err)
		}
		s.bus.Publish(events.NoticeEvent{
			TenantID:     ev.TenantID,
			TechnicianID: techID,
			DisruptionID: ev.ID,
			Delivered:    err == nil,
			Attempts:     attempts,
		})
	}
	result.State = model.DisruptionNotified
}

// saveRun persists the record off the request context so cancelled and
// failed runs still land in the store.
func (s *Service) saveRun(rec runstore.Record) {
	if err := s.runs.Save(context.Background(), rec); err != nil {
		s.log.Errorf("save run %s: %v", rec.Run.ID, err)
		monitoring.CaptureException(err, map[string]string{"run_id": rec.Run.ID})
	}
}

func (s *Service) finishRun(run model.Run, plan model.Plan) {
	if err := s.sink.RecordRun(coremetrics.RunEvent{
		RunID:       run.ID,
		TenantID:    run.TenantID,
		Trigger:     run.Trigger,
		Status:      run.Status,
		Jobs:        run.Jobs,
		Technicians: run.Technicians,
		Assigned:    run.Assigned,
		Unassigned:  run.Unassigned,
		Objective:   run.Objective,
		Confidence:  plan.Confidence,
		Degraded:    plan.Degraded,
		TimedOut:    plan.TimedOut,
		Elapsed:     run.Elapsed(),
		Time:        run.FinishedAt,
	}); err != nil {
		s.log.Warnf("record run %s: %v", run.ID, err)
	}
	s.bus.Publish(events.RunEvent{Run: run, Confidence: plan.Confidence, Degraded: plan.Degraded})
}

func (s *Service) finishAdaptation(ev model.DisruptionEvent, result model.AdaptationResult, elapsed time.Duration) {
	if rec, ok := s.sink.(coremetrics.AdaptationRecorder); ok {
		if err := rec.RecordAdaptation(coremetrics.AdaptationEvent{
			DisruptionID:  ev.ID,
			TenantID:      ev.TenantID,
			Type:          ev.Type,
			Severity:      ev.Severity,
			State:         result.State,
			Impact:        result.Impact,
			Reassignments: result.Reassignments,
			MaxDelay:      result.MaxDelay,
			Affected:      len(result.Affected),
			Elapsed:       elapsed,
			Time:          time.Now().UTC(),
		}); err != nil {
			s.log.Warnf("record adaptation %s: %v", ev.ID, err)
		}
	}
	s.bus.Publish(events.AdaptationEvent{
		Event:         ev,
		State:         result.State,
		Impact:        result.Impact,
		Reassignments: result.Reassignments,
		Affected:      result.Affected,
	})
}

// refreshHistory feeds the latest on-time rates back into the confidence
// scorer so future plans reflect observed slippage.
func (s *Service) refreshHistory(tenantID string) {
	defer monitoring.Recover()
	now := time.Now().UTC()
	rates, err := s.agg.OnTimeRates(context.Background(), tenantID, analytics.Period{Start: now.Add(-historyWindow), End: now})
	if err != nil {
		s.log.Warnf("refresh on-time history for %s: %v", tenantID, err)
		return
	}
	if len(rates) > 0 {
		s.history.Update(rates)
	}
}

func jobsForTenant(jobs []model.Job, tenantID string) []model.Job {
	out := append([]model.Job(nil), jobs...)
	for i := range out {
		if out[i].TenantID == "" {
			out[i].TenantID = tenantID
		}
	}
	return out
}

func techsForTenant(techs []model.Technician, tenantID string) []model.Technician {
	out := append([]model.Technician(nil), techs...)
	for i := range out {
		if out[i].TenantID == "" {
			out[i].TenantID = tenantID
		}
	}
	return out
}

// skillDemand counts requested jobs per required skill, feeding the demand
// forecast built by analytics.
func skillDemand(jobs []model.Job) map[string]int {
	demand := map[string]int{}
	for _, j := range jobs {
		for _, skill := range j.Skills {
			demand[skill]++
		}
	}
	if len(demand) == 0 {
		return nil
	}
	return demand
}
