package schedule

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/runstore"
)

// NewRunsHandler returns an HTTP handler exposing run history via
// GET /api/schedule/runs. Supported query parameters: tenant_id, start and
// end (RFC3339, bounds on the run start time), status and limit.
func NewRunsHandler(store runstore.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := runstore.Query{TenantID: r.URL.Query().Get("tenant_id")}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.Status = model.RunStatus(r.URL.Query().Get("status"))
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				q.Limit = n
			}
		}
		records, err := store.List(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
