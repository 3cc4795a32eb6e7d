// Package analytics exposes scheduling KPIs, trends and demand forecasts
// over HTTP.
package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	coreanalytics "github.com/dispatchlab/fieldops/core/analytics"
)

// defaultPeriod is how far back a report reaches when the query carries no
// bounds.
const defaultPeriod = 7 * 24 * time.Hour

// Reporter computes analytics reports from run history.
type Reporter interface {
	Report(ctx context.Context, tenantID string, period coreanalytics.Period) (coreanalytics.Report, error)
}

// NewReportHandler returns an HTTP handler exposing scheduling analytics via
// GET /api/analytics/report. Supported query parameters: tenant_id
// (required), start and end (RFC3339 bounds on the run start time). The
// period defaults to the last seven days.
func NewReportHandler(reporter Reporter, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}
		period := coreanalytics.Period{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				period.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				period.End = t
			}
		}
		if period.End.IsZero() {
			period.End = time.Now().UTC()
		}
		if period.Start.IsZero() {
			period.Start = period.End.Add(-defaultPeriod)
		}
		report, err := reporter.Report(r.Context(), tenantID, period)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}
