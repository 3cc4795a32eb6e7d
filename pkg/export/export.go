package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

// WriteJSON writes the plan to w in JSON format.
func WriteJSON(w io.Writer, plan model.Plan) error {
	enc := json.NewEncoder(w)
	return enc.Encode(plan)
}

// WriteCSV writes the plan to w as one row per scheduled stop, in route
// order. Unassigned jobs get a trailing row with an empty technician id.
func WriteCSV(w io.Writer, plan model.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"technician_id", "job_id", "arrival", "start", "finish", "travel_min", "confidence"}); err != nil {
		return err
	}
	for _, r := range plan.Routes {
		for _, s := range r.Stops {
			rec := []string{
				r.TechnicianID,
				s.JobID,
				s.Arrival.Format(time.RFC3339),
				s.Start.Format(time.RFC3339),
				s.Finish.Format(time.RFC3339),
				strconv.FormatFloat(s.Travel.Minutes(), 'f', 1, 64),
				strconv.FormatFloat(s.Confidence, 'f', 3, 64),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	for _, u := range plan.Unassigned {
		if err := cw.Write([]string{"", u.JobID, "", "", "", "", string(u.Reason)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
