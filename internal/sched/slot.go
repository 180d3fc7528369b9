package sched

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	slotSpinYields = 64
	slotMinPark    = time.Microsecond
	slotMaxPark    = 256 * time.Microsecond
)

// Runner is one physical worker of a processor, steppable from a thread
// slot. Step performs at most one claim-process-complete cycle and reports
// whether it made progress. Retired reports that the runner has fully
// deregistered from its consumer group and may be dropped from its slot.
type Runner interface {
	ID() string
	Step(ctx context.Context) bool
	Retired() bool
}

// slot is one OS worker thread's worth of execution: a goroutine that
// round-robins a single step per assigned runner per iteration. The runner
// list is copy-on-write so the loop never locks.
type slot struct {
	id      int
	runners atomic.Pointer[[]Runner]
	steps   atomic.Int64
	stop    chan struct{}
	done    chan struct{}
}

func newSlot(id int) *slot {
	s := &slot{
		id:   id,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	empty := make([]Runner, 0)
	s.runners.Store(&empty)
	return s
}

func (s *slot) run(ctx context.Context) {
	defer close(s.done)
	spins := 0
	park := time.Duration(0)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		progressed := false
		for _, r := range *s.runners.Load() {
			if r.Step(ctx) {
				progressed = true
				s.steps.Add(1)
			}
		}
		if progressed {
			spins = 0
			park = 0
			continue
		}
		if spins < slotSpinYields {
			spins++
			runtime.Gosched()
			continue
		}
		if park == 0 {
			park = slotMinPark
		} else if park < slotMaxPark {
			park *= 2
		}
		time.Sleep(park)
	}
}

// add appends a runner. Caller holds the scheduler mutex.
func (s *slot) add(r Runner) {
	old := *s.runners.Load()
	next := make([]Runner, len(old)+1)
	copy(next, old)
	next[len(old)] = r
	s.runners.Store(&next)
}

// remove drops a runner. Caller holds the scheduler mutex.
func (s *slot) remove(r Runner) {
	old := *s.runners.Load()
	next := make([]Runner, 0, len(old))
	for _, or := range old {
		if or != r {
			next = append(next, or)
		}
	}
	s.runners.Store(&next)
}

func (s *slot) size() int {
	return len(*s.runners.Load())
}

func (s *slot) halt() {
	close(s.stop)
	<-s.done
}
