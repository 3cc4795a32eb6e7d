package model

import "time"

// ReasonCode explains why a job could not be placed on any route.
type ReasonCode string

const (
	ReasonNoCandidate    ReasonCode = "no_candidate"
	ReasonNoSlot         ReasonCode = "no_slot"
	ReasonTravelExceeded ReasonCode = "travel_time_exceeded"
)

// Alternative is a runner-up technician for an assignment together with the
// extra cost choosing it would have incurred.
type Alternative struct {
	TechnicianID string  `json:"technician_id"`
	CostDelta    float64 `json:"cost_delta"`
}

// Assignment places one job on one technician's route.
type Assignment struct {
	JobID        string        `json:"job_id"`
	TechnicianID string        `json:"technician_id"`
	Arrival      time.Time     `json:"arrival"`                // estimated arrival at the job site
	Start        time.Time     `json:"start"`                  // service start, never before the job window opens
	Finish       time.Time     `json:"finish"`                 // Start plus the job's service duration
	Travel       time.Duration `json:"travel"`                 // travel time from the previous stop
	Confidence   float64       `json:"confidence"`             // completion confidence in [0,1]
	Alternatives []Alternative `json:"alternatives,omitempty"` // ranked runner-up technicians, cheapest first
}

// Wait returns the idle time between arrival and service start.
func (a Assignment) Wait() time.Duration {
	return a.Start.Sub(a.Arrival)
}

// Route is the ordered list of assignments for one technician.
type Route struct {
	TechnicianID string       `json:"technician_id"`
	Stops        []Assignment `json:"stops"`
}

// TravelTime returns the summed travel time over all stops.
func (r Route) TravelTime() time.Duration {
	var total time.Duration
	for _, s := range r.Stops {
		total += s.Travel
	}
	return total
}

// ServiceTime returns the summed on-site time over all stops.
func (r Route) ServiceTime() time.Duration {
	var total time.Duration
	for _, s := range r.Stops {
		total += s.Finish.Sub(s.Start)
	}
	return total
}

// UnassignedJob records a job left off the plan together with the reason.
type UnassignedJob struct {
	JobID  string     `json:"job_id"`
	Reason ReasonCode `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// Plan is the output of one optimization pass over a tenant's day.
type Plan struct {
	RunID      string          `json:"run_id"`
	TenantID   string          `json:"tenant_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Routes     []Route         `json:"routes"`
	Unassigned []UnassignedJob `json:"unassigned,omitempty"`
	Objective  float64         `json:"objective"`  // weighted objective value, lower is better
	Confidence float64         `json:"confidence"` // mean assignment confidence in [0,1]
	Degraded   bool            `json:"degraded"`   // true when travel estimates came from the fallback
	TimedOut   bool            `json:"timed_out"`  // true when the search stopped at the wall-clock budget
}

// PlanMetrics aggregates a plan for reporting and persistence.
type PlanMetrics struct {
	Scheduled     int           `json:"scheduled"`
	Unscheduled   int           `json:"unscheduled"`
	TotalTravel   time.Duration `json:"total_travel"`
	AvgTravel     time.Duration `json:"avg_travel"`
	AvgConfidence float64       `json:"avg_confidence"`
}

// Metrics computes the aggregate metrics of the plan.
func (p Plan) Metrics() PlanMetrics {
	m := PlanMetrics{
		Scheduled:   p.Assigned(),
		Unscheduled: len(p.Unassigned),
		TotalTravel: p.TravelTime(),
	}
	if m.Scheduled > 0 {
		m.AvgTravel = m.TotalTravel / time.Duration(m.Scheduled)
		var sum float64
		for _, r := range p.Routes {
			for _, s := range r.Stops {
				sum += s.Confidence
			}
		}
		m.AvgConfidence = sum / float64(m.Scheduled)
	}
	return m
}

// Assigned returns the number of placed jobs.
func (p Plan) Assigned() int {
	n := 0
	for _, r := range p.Routes {
		n += len(r.Stops)
	}
	return n
}

// TravelTime returns the summed travel time over all routes.
func (p Plan) TravelTime() time.Duration {
	var total time.Duration
	for _, r := range p.Routes {
		total += r.TravelTime()
	}
	return total
}

// RouteFor returns the route of the given technician, or nil.
func (p *Plan) RouteFor(technicianID string) *Route {
	for i := range p.Routes {
		if p.Routes[i].TechnicianID == technicianID {
			return &p.Routes[i]
		}
	}
	return nil
}

// FindAssignment returns the assignment of jobID and the owning technician id.
func (p *Plan) FindAssignment(jobID string) (Assignment, string, bool) {
	for _, r := range p.Routes {
		for _, s := range r.Stops {
			if s.JobID == jobID {
				return s, r.TechnicianID, true
			}
		}
	}
	return Assignment{}, "", false
}
