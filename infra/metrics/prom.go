package metrics

import (
	"strconv"

	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	confidence  *prometheus.GaugeVec
	unassigned  *prometheus.GaugeVec
	adaptations *prometheus.CounterVec
	locations   *prometheus.CounterVec
	notices     *prometheus.CounterVec
}

// NewPromSink registers scheduling metrics on the default Prometheus registerer.
// The metrics HTTP server is started separately.
func NewPromSink() (coremetrics.RunSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.RunSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_runs_total",
		Help: "Total number of optimization runs",
	}, []string{"tenant", "trigger", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldops_run_duration_seconds",
		Help:    "Wall-clock time spent producing a plan",
		Buckets: prometheus.DefBuckets,
	}, []string{"tenant", "trigger"})
	confidence := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldops_plan_confidence",
		Help: "Confidence score of the latest completed plan",
	}, []string{"tenant"})
	unassigned := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldops_unassigned_jobs",
		Help: "Jobs left without a slot in the latest completed plan",
	}, []string{"tenant"})
	adaptations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_adaptations_total",
		Help: "Total number of processed disruption events",
	}, []string{"tenant", "type", "state"})
	locations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_location_updates_total",
		Help: "Total number of technician location reports",
	}, []string{"tenant"})
	notices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_notices_total",
		Help: "Total number of schedule-change notice deliveries",
	}, []string{"tenant", "delivered"})

	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(confidence); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			confidence = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(unassigned); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			unassigned = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(adaptations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			adaptations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(locations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			locations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(notices); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			notices = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		runs:        runs,
		duration:    duration,
		confidence:  confidence,
		unassigned:  unassigned,
		adaptations: adaptations,
		locations:   locations,
		notices:     notices,
	}, nil
}

// RecordRun counts the run and observes its duration. Plan gauges only
// track completed runs.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.TenantID, string(ev.Trigger), string(ev.Status)).Inc()
	s.duration.WithLabelValues(ev.TenantID, string(ev.Trigger)).Observe(ev.Elapsed.Seconds())
	if ev.Status == model.RunCompleted {
		s.confidence.WithLabelValues(ev.TenantID).Set(ev.Confidence)
		s.unassigned.WithLabelValues(ev.TenantID).Set(float64(ev.Unassigned))
	}
	return nil
}

// RecordAdaptation counts disruption outcomes by type and final state.
func (s *PromSink) RecordAdaptation(ev coremetrics.AdaptationEvent) error {
	s.adaptations.WithLabelValues(ev.TenantID, string(ev.Type), string(ev.State)).Inc()
	return nil
}

// RecordLocationUpdate counts technician position reports.
func (s *PromSink) RecordLocationUpdate(ev coremetrics.LocationEvent) error {
	s.locations.WithLabelValues(ev.TenantID).Inc()
	return nil
}

// RecordNotice counts notice delivery attempts.
func (s *PromSink) RecordNotice(ev coremetrics.NoticeEvent) error {
	s.notices.WithLabelValues(ev.TenantID, strconv.FormatBool(ev.Delivered)).Inc()
	return nil
}
