package monitoring

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Quantiles summarizes a latency distribution in seconds.
type Quantiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// Sampler keeps a bounded circular window of samples for on-demand quantile
// summaries. Recording is mutex-guarded but happens only on claim events,
// never inside a claim attempt.
type Sampler struct {
	mu     sync.Mutex
	buf    []float64
	next   int
	filled bool
}

// NewSampler creates a sampler with the given window size.
func NewSampler(window int) *Sampler {
	if window <= 0 {
		window = 1024
	}
	return &Sampler{buf: make([]float64, window)}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (s *Sampler) Record(v float64) {
	s.mu.Lock()
	s.buf[s.next] = v
	s.next++
	if s.next == len(s.buf) {
		s.next = 0
		s.filled = true
	}
	s.mu.Unlock()
}

// Quantiles computes p50/p90/p99 over the current window.
func (s *Sampler) Quantiles() Quantiles {
	s.mu.Lock()
	n := s.next
	if s.filled {
		n = len(s.buf)
	}
	window := make([]float64, n)
	copy(window, s.buf[:n])
	s.mu.Unlock()

	if len(window) == 0 {
		return Quantiles{}
	}
	sort.Float64s(window)
	return Quantiles{
		P50: stat.Quantile(0.50, stat.Empirical, window, nil),
		P90: stat.Quantile(0.90, stat.Empirical, window, nil),
		P99: stat.Quantile(0.99, stat.Empirical, window, nil),
	}
}
