package disruption

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal   *prometheus.CounterVec
	impactScore   prometheus.Histogram
	reassignments prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Histogram) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruption_events_total",
			Help: "Number of handled disruption events by type and outcome",
		},
		[]string{"type", "outcome"},
	)
	impact := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disruption_impact_score",
			Help:    "Impact score of applied adaptations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
	moves := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disruption_reassignments",
			Help:    "Jobs moved to another technician per applied adaptation",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		},
	)
	return events, impact, moves
}

func init() {
	eventsTotal, impactScore, reassignments = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers disruption metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(eventsTotal, impactScore, reassignments)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	eventsTotal, impactScore, reassignments = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
