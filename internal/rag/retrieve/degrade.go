package retrieve

import (
	"sync"
	"time"
)

const (
	latencyWindow       = 50
	latencyThreshold    = 800 * time.Millisecond
	degradeEnterFrac    = 0.5
	degradeExitFrac     = 0.25
	degradedCacheTTLExt = time.Hour
)

// LatencyBreaker tracks the last latencyWindow end-to-end retrieval
// latencies and trips into degraded mode when more than degradeEnterFrac of
// them exceed latencyThreshold. It stays degraded until the fraction drops
// below degradeExitFrac, giving the pipeline hysteresis instead of
// flapping on every slow request.
type LatencyBreaker struct {
	mu       sync.Mutex
	samples  []time.Duration
	degraded bool
}

// NewLatencyBreaker returns a breaker starting in normal (non-degraded) mode.
func NewLatencyBreaker() *LatencyBreaker {
	return &LatencyBreaker{samples: make([]time.Duration, 0, latencyWindow)}
}

// Observe records one end-to-end retrieval latency and re-evaluates the
// degraded/normal transition.
func (b *LatencyBreaker) Observe(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, d)
	if len(b.samples) > latencyWindow {
		b.samples = b.samples[len(b.samples)-latencyWindow:]
	}
	if len(b.samples) < 5 {
		return
	}
	over := 0
	for _, s := range b.samples {
		if s > latencyThreshold {
			over++
		}
	}
	frac := float64(over) / float64(len(b.samples))
	switch {
	case !b.degraded && frac > degradeEnterFrac:
		b.degraded = true
	case b.degraded && frac < degradeExitFrac:
		b.degraded = false
	}
}

// Degraded reports whether the pipeline should currently run in degraded
// mode (reranker skipped, graph traversal depth 0, extended cache TTL).
func (b *LatencyBreaker) Degraded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.degraded
}

// ApplyDegradation mutates a copy of opt to reflect degraded-mode
// overrides when the breaker has tripped: reranking and graph augmentation
// are disabled so the pipeline sheds the slowest stages first.
func (b *LatencyBreaker) ApplyDegradation(opt RetrieveOptions) (RetrieveOptions, time.Duration) {
	if !b.Degraded() {
		return opt, 0
	}
	opt.Rerank = false
	opt.GraphAugment = false
	return opt, degradedCacheTTLExt
}
