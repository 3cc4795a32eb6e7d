package travel

import "github.com/prometheus/client_golang/prometheus"

var (
	matrixRequests prometheus.Counter
	fallbackTotal  prometheus.Counter
	cacheHits      prometheus.Counter
)

func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	req := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_matrix_requests_total",
		Help: "Number of travel matrix queries issued",
	})
	fb := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_fallback_total",
		Help: "Number of queries served by the distance fallback",
	})
	hit := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "travel_cache_hits_total",
		Help: "Number of matrix queries fully served from cache",
	})
	return req, fb, hit
}

func init() {
	matrixRequests, fallbackTotal, cacheHits = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers travel metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(matrixRequests, fallbackTotal, cacheHits)
}

// ResetMetrics reinitializes collectors for testing purposes and registers
// them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	matrixRequests, fallbackTotal, cacheHits = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
