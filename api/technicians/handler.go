// Package technicians exposes live technician state over HTTP: merged
// status from the committed routes and the location feed, and a push
// endpoint for position reports.
package technicians

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/dispatchlab/fieldops/core/location"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/schedule"
)

// Entry is one technician's live status, merging the committed route with
// the last position report.
type Entry struct {
	TechnicianID string            `json:"technician_id"`
	Status       string            `json:"status,omitempty"` // last reported device status
	Position     *model.LatLng     `json:"position,omitempty"`
	ReportedAt   *time.Time        `json:"reported_at,omitempty"`
	Fresh        bool              `json:"fresh"` // ping within the staleness bound
	CurrentStop  *model.Assignment `json:"current_stop,omitempty"`
	NextStop     *model.Assignment `json:"next_stop,omitempty"`
	StopsDone    int               `json:"stops_done"`
	StopsTotal   int               `json:"stops_total"`
}

// NewStatusHandler returns an HTTP handler exposing technician status via
// GET /api/technicians/status?tenant_id=... Technicians appear when they are
// on the committed schedule or have reported a position.
func NewStatusHandler(locs *location.Store, snaps schedule.Store, token string) http.Handler {
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
		now := time.Now().UTC()
		entries := map[string]*Entry{}

		if snap, ok := snaps.Get(tenantID); ok {
			for _, t := range snap.Technicians {
				entries[t.ID] = &Entry{TechnicianID: t.ID}
			}
			for _, route := range snap.Plan.Routes {
				e, ok := entries[route.TechnicianID]
				if !ok {
					e = &Entry{TechnicianID: route.TechnicianID}
					entries[route.TechnicianID] = e
				}
				e.StopsTotal = len(route.Stops)
				for i := range route.Stops {
					stop := route.Stops[i]
					switch {
					case !stop.Finish.After(now):
						e.StopsDone++
					case !stop.Start.After(now):
						e.CurrentStop = &stop
					case e.NextStop == nil:
						e.NextStop = &stop
					}
				}
			}
		}
		for _, ping := range locs.List(tenantID) {
			e, ok := entries[ping.TechnicianID]
			if !ok {
				e = &Entry{TechnicianID: ping.TechnicianID}
				entries[ping.TechnicianID] = e
			}
			at := ping.At
			e.Status = ping.Status
			e.Position = &ping.Position
			e.ReportedAt = &at
			e.Fresh = !ping.StaleAt(now, locs.MaxAge())
		}

		out := make([]Entry, 0, len(entries))
		for _, e := range entries {
			out = append(out, *e)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TechnicianID < out[j].TechnicianID })
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Ingestor accepts technician position reports.
type Ingestor interface {
	UpdateLocation(ping model.LocationPing) error
}

// NewLocationHandler returns an HTTP handler accepting position reports via
// POST /api/technicians/location. Accepted reports are answered with 202 and
// no body; a missing timestamp is stamped on arrival.
func NewLocationHandler(ingestor Ingestor, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ping model.LocationPing
		if err := json.NewDecoder(r.Body).Decode(&ping); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if ping.At.IsZero() {
			ping.At = time.Now().UTC()
		}
		if err := ping.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := ingestor.UpdateLocation(ping); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}
