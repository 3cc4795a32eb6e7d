package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/model"
	sched "github.com/dispatchlab/fieldops/core/schedule"
)

type stubPlanner struct {
	req  OptimizeRequest
	plan model.Plan
	err  error
}

func (s *stubPlanner) Optimize(_ context.Context, req OptimizeRequest) (model.Plan, error) {
	s.req = req
	return s.plan, s.err
}

type stubAdapter struct {
	ev     model.DisruptionEvent
	prefs  model.AdaptationPreferences
	result model.AdaptationResult
	err    error
}

func (s *stubAdapter) Adapt(_ context.Context, ev model.DisruptionEvent, prefs model.AdaptationPreferences) (model.AdaptationResult, error) {
	s.ev = ev
	s.prefs = prefs
	return s.result, s.err
}

type stubCanceller struct {
	id  string
	err error
}

func (s *stubCanceller) CancelRun(runID string) error {
	s.id = runID
	return s.err
}

func optimizeBody(t *testing.T) string {
	t.Helper()
	day := model.TimeWindow{
		Start: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC),
	}
	req := OptimizeRequest{
		TenantID: "acme",
		Jobs: []model.Job{{
			ID: "job-1", TenantID: "acme",
			Location: model.LatLng{Lat: 48.85, Lng: 2.35},
			Duration: 30 * time.Minute, Window: day,
		}},
		Technicians: []model.Technician{{
			ID: "tech-1", TenantID: "acme",
			Base: model.LatLng{Lat: 48.86, Lng: 2.34}, Shift: day,
		}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestOptimizeHandler_Basic(t *testing.T) {
	planner := &stubPlanner{plan: model.Plan{RunID: "run-1", TenantID: "acme"}}
	h := NewOptimizeHandler(planner, "tok")

	req := httptest.NewRequest("POST", "/api/schedule/optimize", strings.NewReader(optimizeBody(t)))
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var plan model.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plan.RunID != "run-1" {
		t.Fatalf("unexpected plan %#v", plan)
	}
	if planner.req.TenantID != "acme" || len(planner.req.Jobs) != 1 {
		t.Fatalf("planner got %#v", planner.req)
	}
}

func TestOptimizeHandler_Auth(t *testing.T) {
	h := NewOptimizeHandler(&stubPlanner{}, "tok")
	req := httptest.NewRequest("POST", "/api/schedule/optimize", strings.NewReader(optimizeBody(t)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestOptimizeHandler_MissingTenant(t *testing.T) {
	h := NewOptimizeHandler(&stubPlanner{}, "")
	req := httptest.NewRequest("POST", "/api/schedule/optimize", strings.NewReader(`{"jobs":[]}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestOptimizeHandler_TenantBusy(t *testing.T) {
	planner := &stubPlanner{err: fmt.Errorf("tenant acme: %w", sched.ErrTenantBusy)}
	h := NewOptimizeHandler(planner, "")
	req := httptest.NewRequest("POST", "/api/schedule/optimize", strings.NewReader(optimizeBody(t)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestOptimizeHandler_ValidationError(t *testing.T) {
	verr := &constraint.ValidationError{Violations: []constraint.Violation{{Field: "jobs[0].duration", Detail: "must be positive"}}}
	planner := &stubPlanner{err: verr}
	h := NewOptimizeHandler(planner, "")
	req := httptest.NewRequest("POST", "/api/schedule/optimize", strings.NewReader(optimizeBody(t)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "duration") {
		t.Fatalf("expected violation detail, got %s", rr.Body.String())
	}
}

func TestAdaptHandler_Basic(t *testing.T) {
	adapter := &stubAdapter{result: model.AdaptationResult{DisruptionID: "d1", State: model.DisruptionApplied}}
	h := NewAdaptHandler(adapter, "")

	body := AdaptRequest{
		Event: model.DisruptionEvent{
			ID: "d1", TenantID: "acme", Type: model.DisruptionTrafficDelay,
			TechnicianID: "tech-1", Delay: 20 * time.Minute,
		},
		Preferences: &model.AdaptationPreferences{MaxReassignments: 2, Notify: true},
	}
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/api/schedule/adapt", strings.NewReader(string(b)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var res model.AdaptationResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("unexpected result %#v", res)
	}
	if adapter.prefs.MaxReassignments != 2 || !adapter.prefs.Notify {
		t.Fatalf("adapter got prefs %#v", adapter.prefs)
	}
}

func TestAdaptHandler_InvalidEvent(t *testing.T) {
	adapter := &stubAdapter{}
	h := NewAdaptHandler(adapter, "")
	// traffic delay without a delay value
	body := `{"event":{"id":"d1","tenant_id":"acme","type":"traffic_delay","technician_id":"tech-1"}}`
	req := httptest.NewRequest("POST", "/api/schedule/adapt", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if adapter.ev.ID != "" {
		t.Fatalf("adapter should not have been called")
	}
}

func TestAdaptHandler_NoSchedule(t *testing.T) {
	adapter := &stubAdapter{err: fmt.Errorf("tenant acme: %w", sched.ErrNoSchedule)}
	h := NewAdaptHandler(adapter, "")
	body := `{"event":{"id":"d1","tenant_id":"acme","type":"resource_unavailable","technician_id":"tech-1"}}`
	req := httptest.NewRequest("POST", "/api/schedule/adapt", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestCancelHandler_Basic(t *testing.T) {
	canceller := &stubCanceller{}
	h := NewCancelHandler(canceller, "")
	req := httptest.NewRequest("POST", "/api/schedule/runs/run-7/cancel", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status %d", rr.Code)
	}
	if canceller.id != "run-7" {
		t.Fatalf("cancelled %q", canceller.id)
	}
}

func TestCancelHandler_UnknownRun(t *testing.T) {
	canceller := &stubCanceller{err: fmt.Errorf("run run-9: %w", sched.ErrRunNotFound)}
	h := NewCancelHandler(canceller, "")
	req := httptest.NewRequest("POST", "/api/schedule/runs/run-9/cancel", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestCancelHandler_BadPath(t *testing.T) {
	h := NewCancelHandler(&stubCanceller{}, "")
	req := httptest.NewRequest("POST", "/api/schedule/runs/run-7", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}
