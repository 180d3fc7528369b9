package sched

import (
	"math"
	"sync/atomic"
	"time"
)

// Load is a point-in-time load snapshot for one processor.
type Load struct {
	// Pending is the number of published sequences not yet claimed by the
	// processor's upstream group.
	Pending int64
	// Backlog is the number of sequences claimed but not yet completed.
	Backlog int64
	// Wait is the smoothed time workers spend idle before winning a claim.
	// High wait means the processor is starved, not overloaded.
	Wait time.Duration
}

// EWMA is a lock-free exponentially weighted moving average, safe for
// concurrent observation from every worker of a processor.
type EWMA struct {
	alpha float64
	bits  atomic.Uint64
}

// NewEWMA creates an average with the given smoothing factor in (0, 1];
// higher alpha weighs recent observations more.
func NewEWMA(alpha float64) *EWMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &EWMA{alpha: alpha}
}

// Observe folds a new sample into the average.
func (e *EWMA) Observe(v float64) {
	for {
		old := e.bits.Load()
		cur := math.Float64frombits(old)
		var next float64
		if old == 0 {
			next = v
		} else {
			next = cur + e.alpha*(v-cur)
		}
		if e.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// Value returns the current average, zero before any observation.
func (e *EWMA) Value() float64 {
	return math.Float64frombits(e.bits.Load())
}

// ObserveDuration folds a duration sample into the average.
func (e *EWMA) ObserveDuration(d time.Duration) {
	e.Observe(float64(d))
}

// Duration returns the current average as a duration.
func (e *EWMA) Duration() time.Duration {
	return time.Duration(e.Value())
}
