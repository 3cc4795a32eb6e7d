package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	coreanalytics "github.com/dispatchlab/fieldops/core/analytics"
)

// OnTimeSource computes per-technician on-time rates from run history.
type OnTimeSource interface {
	OnTimeRates(ctx context.Context, tenantID string, period coreanalytics.Period) (map[string]float64, error)
}

// NewOnTimeHandler exposes per-technician on-time rates via
// GET /api/analytics/ontime?tenant_id=... The period defaults to the last
// seven days.
func NewOnTimeHandler(source OnTimeSource, token string) http.Handler {
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
		end := time.Now().UTC()
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				end = t
			}
		}
		start := end.Add(-defaultPeriod)
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				start = t
			}
		}
		rates, err := source.OnTimeRates(r.Context(), tenantID, coreanalytics.Period{Start: start, End: end})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rates); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
