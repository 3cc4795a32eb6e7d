// Package scenarios runs YAML-described scheduling days: a workforce, a
// set of jobs, optional disruptions and the outcomes each step must
// produce. New cases are added by dropping a file next to the harness.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dispatchlab/fieldops/core/model"
)

// day anchors every clock value in a scenario file.
var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type PointDef struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

func (p PointDef) ToModel() model.LatLng { return model.LatLng{Lat: p.Lat, Lng: p.Lng} }

type WindowDef struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func (w WindowDef) ToModel() (model.TimeWindow, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return model.TimeWindow{}, err
	}
	end, err := parseClock(w.End)
	if err != nil {
		return model.TimeWindow{}, err
	}
	return model.TimeWindow{Start: start, End: end}, nil
}

type TechnicianDef struct {
	ID      string    `yaml:"id"`
	Skills  []string  `yaml:"skills,omitempty"`
	Shift   WindowDef `yaml:"shift"`
	Base    PointDef  `yaml:"base"`
	MaxJobs int       `yaml:"max_jobs,omitempty"`
}

func (d TechnicianDef) ToModel(tenantID string) (model.Technician, error) {
	shift, err := d.Shift.ToModel()
	if err != nil {
		return model.Technician{}, fmt.Errorf("technician %s: %w", d.ID, err)
	}
	return model.Technician{
		ID:       d.ID,
		TenantID: tenantID,
		Skills:   d.Skills,
		Shift:    shift,
		Base:     d.Base.ToModel(),
		MaxJobs:  d.MaxJobs,
	}, nil
}

type JobDef struct {
	ID          string    `yaml:"id"`
	Location    PointDef  `yaml:"location"`
	Window      WindowDef `yaml:"window"`
	DurationMin int       `yaml:"duration_min"`
	Skills      []string  `yaml:"skills,omitempty"`
	Priority    int       `yaml:"priority,omitempty"`
}

func (d JobDef) ToModel(tenantID string) (model.Job, error) {
	window, err := d.Window.ToModel()
	if err != nil {
		return model.Job{}, fmt.Errorf("job %s: %w", d.ID, err)
	}
	return model.Job{
		ID:       d.ID,
		TenantID: tenantID,
		Location: d.Location.ToModel(),
		Duration: time.Duration(d.DurationMin) * time.Minute,
		Window:   window,
		Skills:   d.Skills,
		Priority: d.Priority,
	}, nil
}

// ConstraintsDef overrides individual fields of the default constraint set.
type ConstraintsDef struct {
	MaxTravelMin         *int  `yaml:"max_travel_min,omitempty"`
	MaxJobsPerTechnician *int  `yaml:"max_jobs_per_technician,omitempty"`
	SkillMatchRequired   *bool `yaml:"skill_match_required,omitempty"`
	OvertimeAllowed      *bool `yaml:"overtime_allowed,omitempty"`
}

func (d *ConstraintsDef) Apply(cs *model.ConstraintSet) {
	if d == nil {
		return
	}
	if d.MaxTravelMin != nil {
		cs.MaxTravelTime = time.Duration(*d.MaxTravelMin) * time.Minute
	}
	if d.MaxJobsPerTechnician != nil {
		cs.MaxJobsPerTechnician = *d.MaxJobsPerTechnician
	}
	if d.SkillMatchRequired != nil {
		cs.SkillMatchRequired = *d.SkillMatchRequired
	}
	if d.OvertimeAllowed != nil {
		cs.OvertimeAllowed = *d.OvertimeAllowed
	}
}

type PrefsDef struct {
	AllowOvertime        bool `yaml:"allow_overtime,omitempty"`
	MaxScheduleDelayMin  int  `yaml:"max_schedule_delay_min,omitempty"`
	MaxReassignments     int  `yaml:"max_reassignments,omitempty"`
	PreferSameTechnician bool `yaml:"prefer_same_technician,omitempty"`
}

func (d PrefsDef) ToModel() model.AdaptationPreferences {
	return model.AdaptationPreferences{
		AllowOvertime:        d.AllowOvertime,
		MaxScheduleDelay:     time.Duration(d.MaxScheduleDelayMin) * time.Minute,
		MaxReassignments:     d.MaxReassignments,
		PreferSameTechnician: d.PreferSameTechnician,
	}
}

type AreaDef struct {
	Center   PointDef `yaml:"center"`
	RadiusKm float64  `yaml:"radius_km"`
}

type EventExpect struct {
	State             string `yaml:"state"`
	Reassignments     *int   `yaml:"reassignments,omitempty"`
	MaxDelayMinAtMost int    `yaml:"max_delay_min_at_most,omitempty"`
	SameTechnician    bool   `yaml:"same_technician,omitempty"`
}

type EventDef struct {
	ID           string      `yaml:"id"`
	Type         string      `yaml:"type"`
	Severity     string      `yaml:"severity,omitempty"`
	JobID        string      `yaml:"job_id,omitempty"`
	TechnicianID string      `yaml:"technician_id,omitempty"`
	DelayMin     int         `yaml:"delay_min,omitempty"`
	Slowdown     float64     `yaml:"slowdown,omitempty"`
	Area         *AreaDef    `yaml:"area,omitempty"`
	NewJob       *JobDef     `yaml:"new_job,omitempty"`
	NewWindow    *WindowDef  `yaml:"new_window,omitempty"`
	Prefs        PrefsDef    `yaml:"prefs,omitempty"`
	Expect       EventExpect `yaml:"expect"`
}

func (d EventDef) ToModel(tenantID string) (model.DisruptionEvent, error) {
	ev := model.DisruptionEvent{
		ID:           d.ID,
		TenantID:     tenantID,
		Type:         parseEventType(d.Type),
		Severity:     parseSeverity(d.Severity),
		ReceivedAt:   day.Add(8 * time.Hour),
		JobID:        d.JobID,
		TechnicianID: d.TechnicianID,
		Delay:        time.Duration(d.DelayMin) * time.Minute,
		Slowdown:     d.Slowdown,
	}
	if d.Area != nil {
		ev.Area = &model.Area{Center: d.Area.Center.ToModel(), RadiusKm: d.Area.RadiusKm}
	}
	if d.NewJob != nil {
		job, err := d.NewJob.ToModel(tenantID)
		if err != nil {
			return model.DisruptionEvent{}, err
		}
		ev.NewJob = &job
	}
	if d.NewWindow != nil {
		window, err := d.NewWindow.ToModel()
		if err != nil {
			return model.DisruptionEvent{}, err
		}
		ev.NewWindow = &window
	}
	return ev, nil
}

type PlanExpect struct {
	Scheduled  int               `yaml:"scheduled"`
	Unassigned map[string]string `yaml:"unassigned,omitempty"` // job id to reason code
	Degraded   *bool             `yaml:"degraded,omitempty"`
}

type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Tenant      string          `yaml:"tenant"`
	FailTravel  bool            `yaml:"fail_travel,omitempty"` // run with the primary road-time provider down
	Constraints *ConstraintsDef `yaml:"constraints,omitempty"`
	Technicians []TechnicianDef `yaml:"technicians"`
	Jobs        []JobDef        `yaml:"jobs"`
	Events      []EventDef      `yaml:"events,omitempty"`
	Expect      PlanExpect      `yaml:"expect"`
}

// Models converts the scenario's workforce and jobs.
func (sc *Scenario) Models() ([]model.Job, []model.Technician, error) {
	jobs := make([]model.Job, len(sc.Jobs))
	for i, d := range sc.Jobs {
		j, err := d.ToModel(sc.Tenant)
		if err != nil {
			return nil, nil, err
		}
		jobs[i] = j
	}
	techs := make([]model.Technician, len(sc.Technicians))
	for i, d := range sc.Technicians {
		tech, err := d.ToModel(sc.Tenant)
		if err != nil {
			return nil, nil, err
		}
		techs[i] = tech
	}
	return jobs, techs, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock %q: %w", s, err)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func parseEventType(t string) model.DisruptionType {
	switch t {
	case "traffic_delay":
		return model.DisruptionTrafficDelay
	case "weather":
		return model.DisruptionWeather
	case "emergency_insertion":
		return model.DisruptionEmergencyInsertion
	case "resource_unavailable":
		return model.DisruptionResourceUnavailable
	case "customer_reschedule":
		return model.DisruptionCustomerReschedule
	default:
		return model.DisruptionTrafficDelay
	}
}

func parseSeverity(s string) model.DisruptionSeverity {
	switch s {
	case "low":
		return model.SeverityLow
	case "high":
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}
