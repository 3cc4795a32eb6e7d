package optimizer

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal        *prometheus.CounterVec
	unscheduledTotal *prometheus.CounterVec
	runDuration      prometheus.Histogram
	searchIterations prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Histogram) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_runs_total",
			Help: "Number of optimization passes by outcome",
		},
		[]string{"status"},
	)
	uns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_jobs_unscheduled_total",
			Help: "Number of jobs left unscheduled by reason code",
		},
		[]string{"reason"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optimizer_run_duration_seconds",
			Help:    "Wall-clock duration of optimization passes",
			Buckets: prometheus.DefBuckets,
		},
	)
	iters := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optimizer_search_iterations",
			Help:    "Local-search moves applied per optimization pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	return runs, uns, dur, iters
}

func init() {
	runsTotal, unscheduledTotal, runDuration, searchIterations = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers optimizer metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(runsTotal, unscheduledTotal, runDuration, searchIterations)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	runsTotal, unscheduledTotal, runDuration, searchIterations = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
