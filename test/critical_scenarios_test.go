package test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	apischedule "github.com/dispatchlab/fieldops/api/schedule"
	"github.com/dispatchlab/fieldops/app"
	"github.com/dispatchlab/fieldops/config"
	"github.com/dispatchlab/fieldops/core/factory"
	"github.com/dispatchlab/fieldops/core/model"
	sched "github.com/dispatchlab/fieldops/core/schedule"
)

// TestCriticalScenariosIntegration covers the scenarios we gate releases on:
// planning throughput, tenant isolation under concurrency, disruption
// round-trips and provider outages.
func TestCriticalScenariosIntegration(t *testing.T) {
	scenarios := []struct {
		name     string
		scenario func(t *testing.T)
	}{
		{"LargeWorkforce_Performance", testLargeWorkforcePerformance},
		{"Concurrent_Tenants", testConcurrentTenants},
		{"SameTenant_Lease", testSameTenantLease},
		{"Repeated_Optimize_Stability", testRepeatedOptimizeStability},
		{"Concurrent_Access", testConcurrentAccess},
		{"Disruption_RoundTrip", testDisruptionRoundTrip},
		{"Provider_Outage", testProviderOutage},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.name, scenario.scenario)
	}
}

// newService builds a service on the in-memory stores, no MQTT and no
// metrics sinks. mutate tweaks the config before construction.
func newService(t *testing.T, mutate func(*config.Config)) *app.Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Optimizer.BudgetSeconds = 5
	cfg.Travel.FallbackSpeedKmh = 40
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("close service: %v", err)
		}
	})
	return svc
}

// gridFixture spreads jobs over a city grid with shared wide windows so
// capacity and travel, not windows, decide the outcome.
func gridFixture(tenant string, nJobs, nTechs int, day time.Time) ([]model.Job, []model.Technician) {
	depot := model.LatLng{Lat: 48.8566, Lng: 2.3522}
	shift := model.TimeWindow{Start: day.Add(8 * time.Hour), End: day.Add(18 * time.Hour)}
	window := model.TimeWindow{Start: day.Add(8 * time.Hour), End: day.Add(17 * time.Hour)}
	skills := []string{"hvac", "electrical"}

	jobs := make([]model.Job, nJobs)
	for i := range jobs {
		jobs[i] = model.Job{
			ID:       fmt.Sprintf("job-%03d", i),
			TenantID: tenant,
			Location: model.LatLng{Lat: depot.Lat + float64(i%10)*0.01, Lng: depot.Lng + float64(i/10)*0.01},
			Window:   window,
			Duration: 20 * time.Minute,
			Skills:   []string{skills[i%2]},
			Priority: i % 5,
		}
	}
	techs := make([]model.Technician, nTechs)
	for i := range techs {
		techs[i] = model.Technician{
			ID:       fmt.Sprintf("tech-%02d", i),
			TenantID: tenant,
			Skills:   skills,
			Base:     model.LatLng{Lat: depot.Lat + float64(i)*0.005, Lng: depot.Lng},
			Shift:    shift,
		}
	}
	return jobs, techs
}

// checkRoutes fails the test when any route visits a stop before the
// previous one is finished and the leg driven.
func checkRoutes(t *testing.T, plan model.Plan) {
	t.Helper()
	for _, route := range plan.Routes {
		for i := 1; i < len(route.Stops); i++ {
			prev, cur := route.Stops[i-1], route.Stops[i]
			if prev.Finish.Add(cur.Travel).After(cur.Start) {
				t.Errorf("route %s: stop %s starts at %s before %s finishes at %s plus %s travel",
					route.TechnicianID, cur.JobID, cur.Start.Format(time.RFC3339),
					prev.JobID, prev.Finish.Format(time.RFC3339), cur.Travel)
			}
		}
	}
}

func testLargeWorkforcePerformance(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	jobs, techs := gridFixture("metro", 100, 10, day)

	start := time.Now()
	plan, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
		TenantID: "metro", Jobs: jobs, Technicians: techs,
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if elapsed > 30*time.Second {
		t.Errorf("planning 100 jobs took too long: %v", elapsed)
	}
	if got := plan.Assigned(); got != 100 {
		t.Errorf("expected all 100 jobs assigned, got %d (unassigned %d)", got, len(plan.Unassigned))
	}
	checkRoutes(t, plan)

	t.Logf("planned 100 jobs across 10 technicians in %v, objective %.4f", elapsed, plan.Objective)
}

func testConcurrentTenants(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)

	numTenants := 12
	var wg sync.WaitGroup
	errs := make(chan error, numTenants)
	for i := 0; i < numTenants; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			tenant := fmt.Sprintf("tenant-%02d", id)
			jobs, techs := gridFixture(tenant, 6, 2, day)
			plan, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
				TenantID: tenant, Jobs: jobs, Technicians: techs,
			})
			if err != nil {
				errs <- fmt.Errorf("tenant %s: %w", tenant, err)
				return
			}
			if got := plan.Assigned(); got != 6 {
				errs <- fmt.Errorf("tenant %s: expected 6 assigned, got %d", tenant, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	t.Logf("%d tenants planned concurrently", numTenants)
}

func testSameTenantLease(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	jobs, techs := gridFixture("shared", 30, 4, day)

	numCallers := 8
	var wg sync.WaitGroup
	results := make(chan error, numCallers)
	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
				TenantID: "shared", Jobs: jobs, Technicians: techs,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, busy := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, sched.ErrTenantBusy):
			busy++
		default:
			t.Errorf("unexpected error under lease contention: %v", err)
		}
	}
	if succeeded == 0 {
		t.Error("no caller ever acquired the tenant lease")
	}
	t.Logf("lease contention: %d succeeded, %d busy of %d callers", succeeded, busy, numCallers)
}

func testRepeatedOptimizeStability(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	jobs, techs := gridFixture("repeat", 8, 3, day)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	first := -1
	for i := 0; i < 25; i++ {
		plan, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
			TenantID: "repeat", Jobs: jobs, Technicians: techs,
		})
		if err != nil {
			t.Fatalf("optimize %d: %v", i, err)
		}
		if first < 0 {
			first = plan.Assigned()
		} else if got := plan.Assigned(); got != first {
			t.Errorf("optimize %d: assignment count drifted from %d to %d", i, first, got)
		}
		if i%10 == 0 {
			runtime.GC()
		}
	}

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	t.Logf("25 runs, %d assigned each, heap %d -> %d bytes", first, before.HeapAlloc, after.HeapAlloc)
}

func testConcurrentAccess(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)

	numGoroutines := 20
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs <- fmt.Errorf("panic in goroutine %d: %v", id, r)
				}
			}()

			switch id % 3 {
			case 0:
				tenant := fmt.Sprintf("mix-%02d", id)
				jobs, techs := gridFixture(tenant, 4, 2, day)
				if _, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
					TenantID: tenant, Jobs: jobs, Technicians: techs,
				}); err != nil {
					errs <- fmt.Errorf("optimize %s: %w", tenant, err)
				}
			case 1:
				ping := model.LocationPing{
					TenantID:     "mix-loc",
					TechnicianID: fmt.Sprintf("tech-%02d", id),
					Position:     model.LatLng{Lat: 48.86, Lng: 2.35},
					At:           time.Now().UTC(),
				}
				if err := svc.UpdateLocation(ping); err != nil {
					errs <- fmt.Errorf("update location: %w", err)
				}
			case 2:
				if err := svc.CancelRun(fmt.Sprintf("run-missing-%d", id)); !errors.Is(err, sched.ErrRunNotFound) {
					errs <- fmt.Errorf("cancel unknown run: expected ErrRunNotFound, got %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	t.Log("concurrent access test passed")
}

func testDisruptionRoundTrip(t *testing.T) {
	svc := newService(t, nil)
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	depot := model.LatLng{Lat: 48.8566, Lng: 2.3522}
	window := model.TimeWindow{Start: day.Add(9 * time.Hour), End: day.Add(16 * time.Hour)}
	shift := model.TimeWindow{Start: day.Add(9 * time.Hour), End: day.Add(18 * time.Hour)}

	jobs := []model.Job{
		{ID: "job-a", TenantID: "round", Location: depot, Window: window, Duration: 30 * time.Minute, Skills: []string{"hvac"}},
		{ID: "job-b", TenantID: "round", Location: model.LatLng{Lat: 48.8766, Lng: 2.3522}, Window: window, Duration: 30 * time.Minute, Skills: []string{"hvac"}},
		{ID: "job-c", TenantID: "round", Location: model.LatLng{Lat: 48.8966, Lng: 2.3522}, Window: window, Duration: 30 * time.Minute, Skills: []string{"electrical"}},
	}
	techs := []model.Technician{
		{ID: "tech-1", TenantID: "round", Skills: []string{"hvac"}, Base: depot, Shift: shift},
		{ID: "tech-2", TenantID: "round", Skills: []string{"electrical"}, Base: depot, Shift: shift},
	}

	plan, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
		TenantID: "round", Jobs: jobs, Technicians: techs,
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if got := plan.Assigned(); got != 3 {
		t.Fatalf("expected 3 assigned, got %d", got)
	}

	traffic := model.DisruptionEvent{
		ID: "dis-traffic", TenantID: "round", Type: model.DisruptionTrafficDelay,
		Severity: model.SeverityMedium, JobID: "job-a", Delay: 20 * time.Minute,
	}
	result, err := svc.Adapt(context.Background(), traffic, model.AdaptationPreferences{
		MaxScheduleDelay:     2 * time.Hour,
		PreferSameTechnician: true,
	})
	if err != nil {
		t.Fatalf("adapt traffic: %v", err)
	}
	if result.State != model.DisruptionApplied {
		t.Fatalf("traffic delay not applied: %s (%s)", result.State, result.Reason)
	}
	if result.Reassignments != 0 {
		t.Errorf("traffic delay should retime in place, got %d reassignments", result.Reassignments)
	}
	if result.MaxDelay != 20*time.Minute {
		t.Errorf("expected the route tail to slip 20m, got %s", result.MaxDelay)
	}

	urgent := model.DisruptionEvent{
		ID: "dis-urgent", TenantID: "round", Type: model.DisruptionEmergencyInsertion,
		Severity: model.SeverityHigh,
		NewJob: &model.Job{
			ID: "job-urgent", TenantID: "round", Location: model.LatLng{Lat: 48.8666, Lng: 2.3522},
			Window: window, Duration: 30 * time.Minute, Skills: []string{"hvac"}, Priority: 9,
		},
	}
	result, err = svc.Adapt(context.Background(), urgent, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("adapt emergency: %v", err)
	}
	if result.State != model.DisruptionApplied {
		t.Fatalf("emergency insertion not applied: %s (%s)", result.State, result.Reason)
	}
	inserted := false
	for _, c := range result.Changes {
		if c.JobID == "job-urgent" && c.Before == nil && c.After != nil {
			inserted = true
		}
	}
	if !inserted {
		t.Errorf("emergency job missing from changes: %+v", result.Changes)
	}

	t.Logf("round trip: traffic retime then emergency insertion, impact %.3f", result.Impact)
}

func testProviderOutage(t *testing.T) {
	svc := newService(t, func(cfg *config.Config) {
		cfg.Travel.Provider = factory.ModuleConfig{
			Type: "matrix",
			Conf: map[string]any{"url": "http://127.0.0.1:1", "timeout_seconds": 1},
		}
	})
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	jobs, techs := gridFixture("outage", 4, 2, day)

	plan, err := svc.Optimize(context.Background(), apischedule.OptimizeRequest{
		TenantID: "outage", Jobs: jobs, Technicians: techs,
	})
	if err != nil {
		t.Fatalf("optimize with dead provider: %v", err)
	}
	if !plan.Degraded {
		t.Error("plan should be flagged degraded when the provider is unreachable")
	}
	if got := plan.Assigned(); got != 4 {
		t.Errorf("fallback estimates should still place all 4 jobs, got %d", got)
	}

	t.Logf("provider outage absorbed: %d jobs on fallback estimates", plan.Assigned())
}
