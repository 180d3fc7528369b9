package ring

import (
	"context"
	"runtime"
	"time"
)

const (
	spinYields = 64
	minPark    = time.Microsecond
	maxPark    = 256 * time.Microsecond
)

// Waiter implements the spin-then-park strategy used whenever a producer
// finds the buffer full or a consumer finds no claimable sequence. It yields
// the processor for a bounded number of spins, then parks with exponentially
// increasing sleeps capped at maxPark so wake-up latency stays bounded
// without any cross-goroutine signaling.
type Waiter struct {
	spins int
	park  time.Duration
}

// Pause blocks for one backoff step. A nil context is allowed for callers
// that cannot be canceled.
func (w *Waiter) Pause(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if w.spins < spinYields {
		w.spins++
		runtime.Gosched()
		return nil
	}
	if w.park == 0 {
		w.park = minPark
	} else if w.park < maxPark {
		w.park *= 2
	}
	time.Sleep(w.park)
	return nil
}

// Reset returns the waiter to the spinning phase. Called after progress is
// made so the next stall starts cheap again.
func (w *Waiter) Reset() {
	w.spins = 0
	w.park = 0
}
