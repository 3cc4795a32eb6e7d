// Package analytics computes KPIs, trends, and short-horizon demand
// forecasts from optimization run history. It reads only the run store;
// scheduling never waits on it.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dispatchlab/fieldops/core/logger"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/runstore"
	"github.com/dispatchlab/fieldops/core/score"
)

// DefaultAlpha is the exponential smoothing factor for demand forecasts.
const DefaultAlpha = 0.35

// z95 is the normal quantile for a 95% confidence interval.
const z95 = 1.96

// trendBand is the relative change below which a trend counts as steady.
const trendBand = 0.05

// Period bounds an analytics query by run start time, inclusive.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// KPIs aggregates completed runs of one tenant over a period.
type KPIs struct {
	Runs             int     `json:"runs"`
	DegradedRuns     int     `json:"degraded_runs"`
	JobsScheduled    int     `json:"jobs_scheduled"`
	JobsUnscheduled  int     `json:"jobs_unscheduled"`
	SchedulingRate   float64 `json:"scheduling_rate"`    // scheduled share of all requested jobs
	UtilizationRate  float64 `json:"utilization_rate"`   // busy share of route span, travel included
	OnTimeRate       float64 `json:"on_time_rate"`       // jobs whose start never slipped after first commit
	AvgTravelMinutes float64 `json:"avg_travel_minutes"`
	TravelSavingsPct float64 `json:"travel_savings_pct"` // latest run's mean travel vs the window mean
	AvgConfidence    float64 `json:"avg_confidence"`
	ConfidenceStdDev float64 `json:"confidence_std_dev"`
}

// Direction classifies how a metric moved across the period.
type Direction string

const (
	TrendUp     Direction = "up"
	TrendDown   Direction = "down"
	TrendSteady Direction = "steady"
)

// Trend compares the first and second half of the period for one metric.
type Trend struct {
	Metric     string    `json:"metric"`
	Direction  Direction `json:"direction"`
	FirstHalf  float64   `json:"first_half"`
	SecondHalf float64   `json:"second_half"`
}

// Forecast is the expected demand for one skill at the next batch run,
// with a 95% confidence interval from the smoothing residuals.
type Forecast struct {
	Skill   string  `json:"skill"`
	Demand  float64 `json:"demand"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Samples int     `json:"samples"`
}

// Report is the output of one analytics query.
type Report struct {
	TenantID    string     `json:"tenant_id"`
	Period      Period     `json:"period"`
	GeneratedAt time.Time  `json:"generated_at"`
	KPIs        KPIs       `json:"kpis"`
	Trends      []Trend    `json:"trends,omitempty"`
	Forecasts   []Forecast `json:"forecasts,omitempty"`
}

// Option tunes an Aggregator.
type Option func(*Aggregator)

func WithAlpha(alpha float64) Option {
	return func(a *Aggregator) { a.alpha = alpha }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator computes reports from run history.
type Aggregator struct {
	store runstore.Store
	log   logger.Logger
	alpha float64
	now   func() time.Time
}

func New(store runstore.Store, log logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, log: log, alpha: DefaultAlpha, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report computes KPIs, trends, and forecasts for the tenant over the
// period. Only completed runs contribute; an empty history yields a zero
// report, not an error.
func (a *Aggregator) Report(ctx context.Context, tenantID string, period Period) (Report, error) {
	recs, err := a.completed(ctx, tenantID, period)
	if err != nil {
		return Report{}, err
	}
	rep := Report{
		TenantID:    tenantID,
		Period:      period,
		GeneratedAt: a.now(),
		KPIs:        kpis(recs),
		Trends:      trends(recs),
		Forecasts:   a.forecasts(recs),
	}
	a.log.Debugf("analytics report for %s: %d runs, %d forecasts", tenantID, rep.KPIs.Runs, len(rep.Forecasts))
	return rep, nil
}

// OnTimeRates computes the per-technician on-time rate over the period,
// for feeding the scorer's history signal.
func (a *Aggregator) OnTimeRates(ctx context.Context, tenantID string, period Period) (map[string]float64, error) {
	recs, err := a.completed(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	byTech, _, _ := onTimeStats(recs)
	rates := make(map[string]float64, len(byTech))
	for id, c := range byTech {
		rates[id] = float64(c.onTime) / float64(c.total)
	}
	return rates, nil
}

func (a *Aggregator) completed(ctx context.Context, tenantID string, period Period) ([]runstore.Record, error) {
	recs, err := a.store.List(ctx, runstore.Query{
		TenantID: tenantID,
		Start:    period.Start,
		End:      period.End,
		Status:   model.RunCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: list runs: %w", err)
	}
	return recs, nil
}

func kpis(recs []runstore.Record) KPIs {
	k := KPIs{Runs: len(recs)}
	if len(recs) == 0 {
		k.OnTimeRate = score.NeutralOnTimeRate
		return k
	}

	var travel, conf []float64
	var busy, span time.Duration
	for _, rec := range recs {
		k.JobsScheduled += rec.Run.Assigned
		k.JobsUnscheduled += rec.Run.Unassigned
		if rec.Plan.Degraded {
			k.DegradedRuns++
		}
		m := rec.Plan.Metrics()
		if m.Scheduled > 0 {
			travel = append(travel, m.AvgTravel.Minutes())
		}
		conf = append(conf, rec.Plan.Confidence)
		b, s := busySpan(rec.Plan)
		busy += b
		span += s
	}

	if total := k.JobsScheduled + k.JobsUnscheduled; total > 0 {
		k.SchedulingRate = float64(k.JobsScheduled) / float64(total)
	}
	if span > 0 {
		k.UtilizationRate = float64(busy) / float64(span)
	}
	if len(travel) > 0 {
		k.AvgTravelMinutes = stat.Mean(travel, nil)
		latest := travel[len(travel)-1]
		if k.AvgTravelMinutes > 0 {
			k.TravelSavingsPct = (k.AvgTravelMinutes - latest) / k.AvgTravelMinutes * 100
		}
	}
	k.AvgConfidence = stat.Mean(conf, nil)
	if len(conf) > 1 {
		k.ConfidenceStdDev = stat.StdDev(conf, nil)
	}

	_, onTime, total := onTimeStats(recs)
	if total > 0 {
		k.OnTimeRate = float64(onTime) / float64(total)
	} else {
		k.OnTimeRate = score.NeutralOnTimeRate
	}
	return k
}

// busySpan sums the active time and the total route span of a plan.
// Busy covers travel and service; the gap to span is idle waiting.
func busySpan(p model.Plan) (busy, span time.Duration) {
	for _, r := range p.Routes {
		if len(r.Stops) == 0 {
			continue
		}
		first, last := r.Stops[0], r.Stops[len(r.Stops)-1]
		span += last.Finish.Sub(first.Arrival.Add(-first.Travel))
		busy += r.TravelTime() + r.ServiceTime()
	}
	return busy, span
}

type onTimeCounter struct {
	onTime int
	total  int
}

// onTimeStats replays the period's committed plans in order and counts,
// per technician, jobs whose start never slipped past its first committed
// value. Records must be sorted by run start, which List guarantees.
func onTimeStats(recs []runstore.Record) (map[string]*onTimeCounter, int, int) {
	firstStart := map[string]time.Time{}
	lastStop := map[string]model.Assignment{}
	for _, rec := range recs {
		for _, route := range rec.Plan.Routes {
			for _, stop := range route.Stops {
				if _, ok := firstStart[stop.JobID]; !ok {
					firstStart[stop.JobID] = stop.Start
				}
				lastStop[stop.JobID] = stop
			}
		}
	}

	byTech := map[string]*onTimeCounter{}
	onTime, total := 0, 0
	for jobID, stop := range lastStop {
		c := byTech[stop.TechnicianID]
		if c == nil {
			c = &onTimeCounter{}
			byTech[stop.TechnicianID] = c
		}
		c.total++
		total++
		if !stop.Start.After(firstStart[jobID]) {
			c.onTime++
			onTime++
		}
	}
	return byTech, onTime, total
}

// trends compares half-window means for the per-run metric series.
func trends(recs []runstore.Record) []Trend {
	if len(recs) < 2 {
		return nil
	}
	travel := make([]float64, len(recs))
	conf := make([]float64, len(recs))
	jobs := make([]float64, len(recs))
	for i, rec := range recs {
		travel[i] = rec.Plan.Metrics().AvgTravel.Minutes()
		conf[i] = rec.Plan.Confidence
		jobs[i] = float64(rec.Run.Assigned + rec.Run.Unassigned)
	}
	return []Trend{
		classify("avg_travel_minutes", travel),
		classify("avg_confidence", conf),
		classify("jobs_per_run", jobs),
	}
}

func classify(metric string, series []float64) Trend {
	half := len(series) / 2
	first := stat.Mean(series[:half], nil)
	second := stat.Mean(series[half:], nil)
	t := Trend{Metric: metric, Direction: TrendSteady, FirstHalf: first, SecondHalf: second}
	switch {
	case first == 0 && second == 0:
	case first == 0:
		t.Direction = TrendUp
	case (second-first)/first > trendBand:
		t.Direction = TrendUp
	case (second-first)/first < -trendBand:
		t.Direction = TrendDown
	}
	return t
}

// forecasts smooths per-skill demand over the period's batch runs. Runs
// without a recorded skill-demand breakdown are skipped.
func (a *Aggregator) forecasts(recs []runstore.Record) []Forecast {
	series := map[string][]float64{}
	n := 0
	for _, rec := range recs {
		if rec.Run.Trigger != model.TriggerBatch || rec.Run.SkillDemand == nil {
			continue
		}
		for skill := range rec.Run.SkillDemand {
			if _, ok := series[skill]; !ok {
				series[skill] = make([]float64, n)
			}
		}
		for skill, s := range series {
			series[skill] = append(s, float64(rec.Run.SkillDemand[skill]))
		}
		n++
	}
	if n == 0 {
		return nil
	}

	skills := make([]string, 0, len(series))
	for skill := range series {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	out := make([]Forecast, 0, len(skills))
	for _, skill := range skills {
		out = append(out, a.smooth(skill, series[skill]))
	}
	return out
}

// smooth runs exponential smoothing over the demand series and derives
// the interval from the one-step-ahead residuals.
func (a *Aggregator) smooth(skill string, s []float64) Forecast {
	level := s[0]
	var resids []float64
	for _, v := range s[1:] {
		resids = append(resids, v-level)
		level = a.alpha*v + (1-a.alpha)*level
	}
	f := Forecast{Skill: skill, Demand: level, Lower: level, Upper: level, Samples: len(s)}
	if len(resids) > 1 {
		sd := stat.StdDev(resids, nil)
		f.Lower = level - z95*sd
		f.Upper = level + z95*sd
	}
	if f.Lower < 0 {
		f.Lower = 0
	}
	return f
}
