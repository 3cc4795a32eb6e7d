package disruption

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/constraint"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/schedule"
	"github.com/dispatchlab/fieldops/core/score"
	"github.com/dispatchlab/fieldops/core/travel"
	"github.com/dispatchlab/fieldops/infra/logger"
)

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func win(sh, sm, eh, em int) model.TimeWindow {
	return model.TimeWindow{Start: at(sh, sm), End: at(eh, em)}
}

// offsetKm shifts a coordinate north by the given distance. One degree of
// latitude is ~111.19km.
func offsetKm(p model.LatLng, km float64) model.LatLng {
	return model.LatLng{Lat: p.Lat + km/111.19, Lng: p.Lng}
}

var (
	depot = model.LatLng{Lat: 48.8566, Lng: 2.3522}
	siteA = offsetKm(depot, 10) // 15 min from depot at 40 km/h
	siteB = offsetKm(depot, 20) // 15 min past siteA
	siteC = offsetKm(depot, -6) // 9 min south of depot
)

// fixtureSnapshot is a committed two-technician day:
//
//	tech-1: job-a 8:15-8:45, job-b 9:15-9:45 (15 min legs)
//	tech-2: job-c 8:30-9:00 (9 min leg)
func fixtureSnapshot() schedule.Snapshot {
	jobs := []model.Job{
		{ID: "job-a", TenantID: "acme", Location: siteA, Window: win(8, 10, 12, 0), Duration: 30 * time.Minute, Priority: 1, Skills: []string{"hvac"}},
		{ID: "job-b", TenantID: "acme", Location: siteB, Window: win(9, 15, 16, 0), Duration: 30 * time.Minute, Priority: 1, Skills: []string{"hvac"}},
		{ID: "job-c", TenantID: "acme", Location: siteC, Window: win(8, 30, 12, 0), Duration: 30 * time.Minute, Priority: 1, Skills: []string{"hvac"}},
	}
	techs := []model.Technician{
		{ID: "tech-1", TenantID: "acme", Skills: []string{"hvac"}, Shift: win(8, 0, 18, 0), Base: depot},
		{ID: "tech-2", TenantID: "acme", Skills: []string{"hvac"}, Shift: win(8, 0, 18, 0), Base: depot},
	}
	plan := model.Plan{
		RunID:     "run-0",
		TenantID:  "acme",
		CreatedAt: at(7, 30),
		Routes: []model.Route{
			{TechnicianID: "tech-1", Stops: []model.Assignment{
				{JobID: "job-a", TechnicianID: "tech-1", Arrival: at(8, 15), Start: at(8, 15), Finish: at(8, 45), Travel: 15 * time.Minute, Confidence: 0.8},
				{JobID: "job-b", TechnicianID: "tech-1", Arrival: at(9, 0), Start: at(9, 15), Finish: at(9, 45), Travel: 15 * time.Minute, Confidence: 0.8},
			}},
			{TechnicianID: "tech-2", Stops: []model.Assignment{
				{JobID: "job-c", TechnicianID: "tech-2", Arrival: at(8, 9), Start: at(8, 30), Finish: at(9, 0), Travel: 9 * time.Minute, Confidence: 0.8},
			}},
		},
	}
	return schedule.Snapshot{
		TenantID:    "acme",
		Version:     3,
		Plan:        plan,
		Jobs:        jobs,
		Technicians: techs,
		Constraints: constraint.DefaultSet(),
	}
}

func testHandler(opts ...Option) *Handler {
	sc := score.NewScorer(nil, score.DefaultConfidenceWeights(), score.DefaultImpactWeights())
	opts = append([]Option{WithClock(func() time.Time { return at(10, 0) })}, opts...)
	return New(travel.NewHaversineEstimator(40), sc, logger.NopLogger{}, opts...)
}

func findStop(t *testing.T, plan model.Plan, jobID string) model.Assignment {
	t.Helper()
	stop, _, ok := plan.FindAssignment(jobID)
	if !ok {
		t.Fatalf("job %s not in plan", jobID)
	}
	return stop
}

func assertUntouched(t *testing.T, before, after model.Plan, affected []string) {
	t.Helper()
	scoped := map[string]bool{}
	for _, id := range affected {
		scoped[id] = true
	}
	for _, route := range before.Routes {
		for _, stop := range route.Stops {
			if scoped[stop.JobID] {
				continue
			}
			got, _, ok := after.FindAssignment(stop.JobID)
			if !ok {
				t.Fatalf("unaffected job %s dropped from plan", stop.JobID)
			}
			if !reflect.DeepEqual(got, stop) {
				t.Fatalf("unaffected job %s changed:\nbefore %+v\nafter  %+v", stop.JobID, stop, got)
			}
		}
	}
}

func TestTrafficDelayShiftsWithinSlack(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID:         "ev-1",
		TenantID:   "acme",
		Type:       model.DisruptionTrafficDelay,
		Severity:   model.SeverityMedium,
		ReceivedAt: at(8, 30),
		JobID:      "job-a",
		Delay:      45 * time.Minute,
	}
	prefs := model.AdaptationPreferences{
		PreferSameTechnician: true,
		MaxScheduleDelay:     60 * time.Minute,
	}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	if res.Reassignments != 0 {
		t.Fatalf("expected 0 reassignments, got %d", res.Reassignments)
	}

	b := findStop(t, next.Plan, "job-b")
	if b.TechnicianID != "tech-1" {
		t.Fatalf("expected job-b to stay on tech-1, got %s", b.TechnicianID)
	}
	shift := b.Start.Sub(at(9, 15))
	if shift < 0 || shift > 45*time.Minute {
		t.Fatalf("expected job-b to shift by at most 45m, got %v", shift)
	}
	if !b.Start.Equal(at(9, 45)) {
		t.Fatalf("expected job-b start 09:45, got %v", b.Start)
	}
	if res.MaxDelay != 45*time.Minute {
		t.Fatalf("expected max delay 45m, got %v", res.MaxDelay)
	}
	if res.Impact <= 0 {
		t.Fatalf("expected positive impact, got %v", res.Impact)
	}

	assertUntouched(t, snap.Plan, next.Plan, res.Affected)
	if got := findStop(t, snap.Plan, "job-b").Start; !got.Equal(at(9, 15)) {
		t.Fatalf("input snapshot mutated: job-b start %v", got)
	}
	if next.Version != snap.Version {
		t.Fatalf("handler must not bump the version, got %d", next.Version)
	}
}

func TestTrafficDelayRejectedUnderTightPrefs(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID:         "ev-2",
		TenantID:   "acme",
		Type:       model.DisruptionTrafficDelay,
		ReceivedAt: at(8, 30),
		JobID:      "job-a",
		Delay:      45 * time.Minute,
	}
	prefs := model.AdaptationPreferences{
		PreferSameTechnician: true,
		MaxScheduleDelay:     10 * time.Minute,
		MaxReassignments:     0,
	}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionRejected {
		t.Fatalf("expected rejected, got %s", res.State)
	}
	if len(res.Recommendations) == 0 {
		t.Fatal("expected recommendations on rejection")
	}
	found := false
	for _, r := range res.Recommendations {
		if strings.Contains(r, "reassignments") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reassignment recommendation, got %v", res.Recommendations)
	}
	if !reflect.DeepEqual(next, snap) {
		t.Fatal("rejected adaptation must leave the snapshot untouched")
	}
}

func TestTrafficDelayOnUnscheduledJob(t *testing.T) {
	snap := fixtureSnapshot()
	snap.Jobs = append(snap.Jobs, model.Job{
		ID: "job-d", TenantID: "acme", Location: offsetKm(depot, 2),
		Window: win(6, 0, 6, 30), Duration: 30 * time.Minute, Priority: 1, Skills: []string{"hvac"},
	})
	snap.Plan.Unassigned = []model.UnassignedJob{{JobID: "job-d", Reason: model.ReasonNoSlot}}

	ev := model.DisruptionEvent{
		ID: "ev-3", TenantID: "acme", Type: model.DisruptionTrafficDelay,
		ReceivedAt: at(8, 30), JobID: "job-d", Delay: 30 * time.Minute,
	}
	_, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s", res.State)
	}
	if len(res.Changes) != 0 || len(res.Affected) != 0 {
		t.Fatalf("expected a no-op adaptation, got changes %v affected %v", res.Changes, res.Affected)
	}
	if !strings.Contains(res.Reason, "no scheduled assignment") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestEmergencyInsertionAppendsCheapestRoute(t *testing.T) {
	snap := fixtureSnapshot()
	newJob := &model.Job{
		ID: "job-x", TenantID: "acme", Location: offsetKm(depot, 21),
		Window: win(10, 0, 14, 0), Duration: 30 * time.Minute, Priority: 3, Skills: []string{"hvac"},
	}
	ev := model.DisruptionEvent{
		ID: "ev-4", TenantID: "acme", Type: model.DisruptionEmergencyInsertion,
		Severity: model.SeverityHigh, ReceivedAt: at(9, 50), NewJob: newJob,
	}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	if len(res.Changes) != 1 || res.Changes[0].JobID != "job-x" || res.Changes[0].Before != nil {
		t.Fatalf("expected one insertion change, got %+v", res.Changes)
	}
	x := findStop(t, next.Plan, "job-x")
	if x.TechnicianID != "tech-1" {
		t.Fatalf("expected job-x appended to tech-1, got %s", x.TechnicianID)
	}
	if res.Reassignments != 0 {
		t.Fatalf("expected 0 reassignments, got %d", res.Reassignments)
	}
	assertUntouched(t, snap.Plan, next.Plan, res.Affected)

	found := false
	for _, j := range next.Jobs {
		if j.ID == "job-x" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected job-x added to the snapshot jobs")
	}
}

func TestEmergencyInsertionRejectedWithoutSkill(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-5", TenantID: "acme", Type: model.DisruptionEmergencyInsertion,
		ReceivedAt: at(9, 50),
		NewJob: &model.Job{
			ID: "job-x", TenantID: "acme", Location: offsetKm(depot, 3),
			Window: win(10, 0, 14, 0), Duration: time.Hour, Priority: 3, Skills: []string{"plumbing"},
		},
	}
	next, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionRejected {
		t.Fatalf("expected rejected, got %s", res.State)
	}
	joined := strings.Join(res.Recommendations, "; ")
	if !strings.Contains(joined, "on-call capacity") || !strings.Contains(joined, "skill") {
		t.Fatalf("unexpected recommendations %v", res.Recommendations)
	}
	if !reflect.DeepEqual(next.Plan, snap.Plan) {
		t.Fatal("rejected insertion must leave the plan untouched")
	}
}

func TestCustomerRescheduleKeepsPreferredTechnician(t *testing.T) {
	snap := fixtureSnapshot()
	w := win(14, 0, 16, 0)
	ev := model.DisruptionEvent{
		ID: "ev-6", TenantID: "acme", Type: model.DisruptionCustomerReschedule,
		ReceivedAt: at(9, 0), JobID: "job-b", NewWindow: &w,
	}
	prefs := model.AdaptationPreferences{PreferSameTechnician: true}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	b := findStop(t, next.Plan, "job-b")
	if b.TechnicianID != "tech-1" {
		t.Fatalf("expected job-b to stay on tech-1, got %s", b.TechnicianID)
	}
	if !b.Start.Equal(at(14, 0)) {
		t.Fatalf("expected job-b start 14:00, got %v", b.Start)
	}
	if res.Reassignments != 0 {
		t.Fatalf("expected 0 reassignments, got %d", res.Reassignments)
	}
	for _, j := range next.Jobs {
		if j.ID == "job-b" && !j.Window.Start.Equal(at(14, 0)) {
			t.Fatalf("expected snapshot job window updated, got %v", j.Window)
		}
	}
	assertUntouched(t, snap.Plan, next.Plan, res.Affected)
}

func TestReschedulePlacesPreviouslyUnassignedJob(t *testing.T) {
	snap := fixtureSnapshot()
	snap.Jobs = append(snap.Jobs, model.Job{
		ID: "job-d", TenantID: "acme", Location: offsetKm(depot, 2),
		Window: win(6, 0, 6, 30), Duration: 30 * time.Minute, Priority: 1, Skills: []string{"hvac"},
	})
	snap.Plan.Unassigned = []model.UnassignedJob{{JobID: "job-d", Reason: model.ReasonNoSlot}}

	w := win(11, 0, 12, 0)
	ev := model.DisruptionEvent{
		ID: "ev-7", TenantID: "acme", Type: model.DisruptionCustomerReschedule,
		ReceivedAt: at(9, 0), JobID: "job-d", NewWindow: &w,
	}
	prefs := model.AdaptationPreferences{MaxScheduleDelay: 30 * time.Minute}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	d := findStop(t, next.Plan, "job-d")
	if d.TechnicianID != "tech-2" {
		t.Fatalf("expected job-d on tech-2, got %s", d.TechnicianID)
	}
	if res.Reassignments != 0 {
		t.Fatalf("expected 0 reassignments, got %d", res.Reassignments)
	}
	if len(next.Plan.Unassigned) != 0 {
		t.Fatalf("expected job-d lifted off the unassigned list, got %v", next.Plan.Unassigned)
	}
	assertNoRouteOverlap(t, next.Plan)
}

func TestResourceUnavailableMovesWholeRoute(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-8", TenantID: "acme", Type: model.DisruptionResourceUnavailable,
		Severity: model.SeverityHigh, ReceivedAt: at(7, 45), TechnicianID: "tech-1",
	}
	prefs := model.AdaptationPreferences{MaxReassignments: 2}

	next, res, err := testHandler().Handle(context.Background(), snap, ev, prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	if res.Reassignments != 2 {
		t.Fatalf("expected 2 reassignments, got %d", res.Reassignments)
	}
	for _, id := range []string{"job-a", "job-b"} {
		stop := findStop(t, next.Plan, id)
		if stop.TechnicianID != "tech-2" {
			t.Fatalf("expected %s on tech-2, got %s", id, stop.TechnicianID)
		}
	}
	if route := next.Plan.RouteFor("tech-1"); route == nil || len(route.Stops) != 0 {
		t.Fatalf("expected tech-1 route emptied, got %+v", route)
	}
	for _, tech := range next.Technicians {
		if tech.ID == "tech-1" && !tech.Absent {
			t.Fatal("expected tech-1 marked absent in the successor snapshot")
		}
	}
	assertNoRouteOverlap(t, next.Plan)
}

func TestResourceUnavailableRejectedOverBudget(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-9", TenantID: "acme", Type: model.DisruptionResourceUnavailable,
		ReceivedAt: at(7, 45), TechnicianID: "tech-1",
	}
	next, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{MaxReassignments: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionRejected {
		t.Fatalf("expected rejected, got %s", res.State)
	}
	if !reflect.DeepEqual(next, snap) {
		t.Fatal("rejected adaptation must leave the snapshot untouched")
	}
}

func TestWeatherSlowdownDelaysAffectedStops(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-10", TenantID: "acme", Type: model.DisruptionWeather,
		ReceivedAt: at(8, 0),
		Area:       &model.Area{Center: siteB, RadiusKm: 2},
		Slowdown:   4,
	}
	next, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s (%s)", res.State, res.Reason)
	}
	// The 15 min leg into the area runs at a quarter speed: 60 min.
	b := findStop(t, next.Plan, "job-b")
	if !b.Start.Equal(at(9, 45)) {
		t.Fatalf("expected job-b start 09:45, got %v", b.Start)
	}
	if b.Travel != time.Hour {
		t.Fatalf("expected 1h inflated leg, got %v", b.Travel)
	}
	assertUntouched(t, snap.Plan, next.Plan, res.Affected)
}

type fakeAdvisor struct {
	adv Advisory
	err error
}

func (f fakeAdvisor) Advise(context.Context, model.Area) (Advisory, error) {
	return f.adv, f.err
}

func TestWeatherAdvisorFailureDegrades(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-11", TenantID: "acme", Type: model.DisruptionWeather,
		ReceivedAt: at(8, 0),
		Area:       &model.Area{Center: siteB, RadiusKm: 2},
		Slowdown:   4,
	}
	h := testHandler(WithWeather(fakeAdvisor{err: context.DeadlineExceeded}))
	next, res, err := h.Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != model.DisruptionApplied {
		t.Fatalf("expected applied, got %s", res.State)
	}
	if !next.Plan.Degraded {
		t.Fatal("expected degraded flag after advisor failure")
	}
	if got := findStop(t, next.Plan, "job-b").Start; !got.Equal(at(9, 45)) {
		t.Fatalf("expected the event slowdown to apply, got start %v", got)
	}
}

func TestWeatherAdvisorRaisesSlowdown(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-12", TenantID: "acme", Type: model.DisruptionWeather,
		ReceivedAt: at(8, 0),
		Area:       &model.Area{Center: siteB, RadiusKm: 2},
		Slowdown:   4,
	}
	h := testHandler(WithWeather(fakeAdvisor{adv: Advisory{Adverse: true, Slowdown: 8}}))
	next, _, err := h.Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 15 min leg at an eighth speed: two hours, window still open.
	if got := findStop(t, next.Plan, "job-b").Start; !got.Equal(at(10, 45)) {
		t.Fatalf("expected advisor slowdown to win, got start %v", got)
	}
}

func TestHandleRejectsInvalidEvent(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-13", TenantID: "acme", Type: model.DisruptionTrafficDelay,
		ReceivedAt: at(8, 0), JobID: "job-a",
	}
	_, res, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{})
	if err == nil {
		t.Fatal("expected a validation error for a zero delay")
	}
	if res.State != model.DisruptionReceived {
		t.Fatalf("expected state received, got %s", res.State)
	}
}

func TestHandleRejectsTenantMismatch(t *testing.T) {
	snap := fixtureSnapshot()
	ev := model.DisruptionEvent{
		ID: "ev-14", TenantID: "other", Type: model.DisruptionTrafficDelay,
		ReceivedAt: at(8, 0), JobID: "job-a", Delay: 10 * time.Minute,
	}
	if _, _, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{}); err == nil {
		t.Fatal("expected a tenant mismatch error")
	}
}

func TestHandleRejectsUnknownJobReference(t *testing.T) {
	snap := fixtureSnapshot()
	w := win(11, 0, 12, 0)
	ev := model.DisruptionEvent{
		ID: "ev-15", TenantID: "acme", Type: model.DisruptionCustomerReschedule,
		ReceivedAt: at(8, 0), JobID: "ghost", NewWindow: &w,
	}
	if _, _, err := testHandler().Handle(context.Background(), snap, ev, model.AdaptationPreferences{}); err == nil {
		t.Fatal("expected an unknown job error")
	}
}

func assertNoRouteOverlap(t *testing.T, plan model.Plan) {
	t.Helper()
	for _, r := range plan.Routes {
		for i := 1; i < len(r.Stops); i++ {
			prev, cur := r.Stops[i-1], r.Stops[i]
			if prev.Finish.Add(cur.Travel).After(cur.Start) {
				t.Fatalf("route %s: stop %s overlaps %s", r.TechnicianID, prev.JobID, cur.JobID)
			}
		}
	}
}
