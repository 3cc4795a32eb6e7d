package analytics

import (
	"sync"

	"github.com/dispatchlab/fieldops/core/score"
)

// OnTimeProvider caches per-technician on-time rates and serves them to
// the scorer. Unknown technicians get the neutral rate.
type OnTimeProvider struct {
	mu    sync.RWMutex
	rates map[string]float64
}

var _ score.HistoryProvider = (*OnTimeProvider)(nil)

func NewOnTimeProvider() *OnTimeProvider {
	return &OnTimeProvider{rates: map[string]float64{}}
}

// OnTimeRate returns the cached rate for the technician.
func (p *OnTimeProvider) OnTimeRate(technicianID string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rate, ok := p.rates[technicianID]; ok {
		return rate
	}
	return score.NeutralOnTimeRate
}

// Update replaces the cached rates, typically with Aggregator.OnTimeRates
// output.
func (p *OnTimeProvider) Update(rates map[string]float64) {
	next := make(map[string]float64, len(rates))
	for id, r := range rates {
		next[id] = r
	}
	p.mu.Lock()
	p.rates = next
	p.mu.Unlock()
}
