// Package schedule exposes the scheduling operations over HTTP: full
// optimization, disruption adaptation and run cancellation.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/model"
	sched "github.com/dispatchlab/fieldops/core/schedule"
)

// OptimizeRequest is the body of POST /api/schedule/optimize.
type OptimizeRequest struct {
	TenantID    string               `json:"tenant_id"`
	Jobs        []model.Job          `json:"jobs"`
	Technicians []model.Technician   `json:"technicians"`
	Constraints *model.ConstraintSet `json:"constraints,omitempty"` // nil selects the documented defaults
	Horizon     *model.TimeWindow    `json:"horizon,omitempty"`     // nil derives the horizon from the job windows
}

// Planner runs one full optimization for a tenant and commits the result.
type Planner interface {
	Optimize(ctx context.Context, req OptimizeRequest) (model.Plan, error)
}

// AdaptRequest is the body of POST /api/schedule/adapt.
type AdaptRequest struct {
	Event       model.DisruptionEvent        `json:"event"`
	Preferences *model.AdaptationPreferences `json:"preferences,omitempty"`
}

// Adapter repairs the committed schedule of the event's tenant.
type Adapter interface {
	Adapt(ctx context.Context, ev model.DisruptionEvent, prefs model.AdaptationPreferences) (model.AdaptationResult, error)
}

// Canceller cancels an in-flight optimization run.
type Canceller interface {
	CancelRun(runID string) error
}

// NewOptimizeHandler returns an HTTP handler accepting optimization requests
// via POST /api/schedule/optimize. Requests must include an Authorization
// header with "Bearer <token>" when token is non-empty. A second request for
// a tenant whose run is still in flight is answered with 409.
func NewOptimizeHandler(planner Planner, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req OptimizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.TenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}
		plan, err := planner.Optimize(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(plan); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// NewAdaptHandler returns an HTTP handler accepting disruption events via
// POST /api/schedule/adapt. Absent preferences select the zero defaults. A
// rejected adaptation is still a 200; the result carries the rejection
// reason and recommendations.
func NewAdaptHandler(adapter Adapter, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req AdaptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := req.Event.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prefs := model.AdaptationPreferences{}
		if req.Preferences != nil {
			prefs = *req.Preferences
		}
		if err := prefs.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := adapter.Adapt(r.Context(), req.Event, prefs)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// NewCancelHandler returns an HTTP handler cancelling in-flight runs via
// POST /api/schedule/runs/{id}/cancel. Cancelling a run that already
// finished is answered with 404.
func NewCancelHandler(canceller Canceller, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/schedule/runs/")
		parts := strings.Split(path, "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] != "cancel" {
			http.NotFound(w, r)
			return
		}
		if err := canceller.CancelRun(parts[0]); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}

func statusFor(err error) int {
	var verr *constraint.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, sched.ErrTenantBusy), errors.Is(err, sched.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, sched.ErrNoSchedule), errors.Is(err, sched.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
