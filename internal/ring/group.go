package ring

import (
	"sync"
	"sync/atomic"
	"time"
)

// GroupState models the group lifecycle. Halted is the terminal outcome of
// the halt-group error policy: like Draining it refuses new claims, but it
// is entered on operator-visible failure rather than orderly teardown.
type GroupState int32

const (
	GroupActive GroupState = iota
	GroupDraining
	GroupHalted
	GroupClosed
)

// String returns the string representation of the state.
func (s GroupState) String() string {
	switch s {
	case GroupActive:
		return "active"
	case GroupDraining:
		return "draining"
	case GroupHalted:
		return "halted"
	case GroupClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Worker is one physical member of a group. Records live in an arena keyed
// by a stable ID so membership edits are index-set edits, not pointer
// surgery. The in-flight fields exist for stall detection and introspection;
// cursor correctness never depends on them.
type Worker struct {
	id        int64
	inflight  atomic.Int64 // sequence currently claimed, or slotEmpty
	claimedAt atomic.Int64 // unix nanos of the live claim
	completed atomic.Int64
	retired   atomic.Bool
}

// ID returns the worker's stable identifier within its group.
func (w *Worker) ID() int64 { return w.id }

// Inflight returns the sequence the worker currently holds, or -1.
func (w *Worker) Inflight() int64 { return w.inflight.Load() }

// Completed returns the number of sequences this worker has completed.
func (w *Worker) Completed() int64 { return w.completed.Load() }

// Group is one logical consumer of a buffer, realized by 1..N workers that
// share a claim cursor. Exactly-once delivery within the group follows from
// the claim CAS alone: only one member can win a given sequence no matter
// how many race.
type Group[T any] struct {
	name string
	buf  *Buffer[T]

	claim  atomic.Int64 // next sequence available to claim
	cursor atomic.Int64 // highest fully completed sequence
	state  atomic.Int32
	paused atomic.Bool // set during membership updates

	// marks[seq&mask] holds seq once that sequence is completed. The cursor
	// advances only across contiguously marked sequences, so it never passes
	// an outstanding claim regardless of completion order across members.
	marks []atomic.Int64

	members atomic.Pointer[[]*Worker]
	nextID  atomic.Int64
	mu      sync.Mutex // membership mutations only
}

func newGroup[T any](b *Buffer[T], name string, start int64) *Group[T] {
	g := &Group[T]{name: name, buf: b}
	g.claim.Store(start)
	g.cursor.Store(start - 1)
	g.marks = make([]atomic.Int64, b.capacity)
	for i := range g.marks {
		g.marks[i].Store(slotEmpty)
	}
	empty := make([]*Worker, 0)
	g.members.Store(&empty)
	return g
}

// Name returns the group's name.
func (g *Group[T]) Name() string { return g.name }

// Buffer returns the buffer the group consumes.
func (g *Group[T]) Buffer() *Buffer[T] { return g.buf }

// State returns the current lifecycle state.
func (g *Group[T]) State() GroupState { return GroupState(g.state.Load()) }

// Cursor returns the highest sequence fully completed by the group.
func (g *Group[T]) Cursor() int64 { return g.cursor.Load() }

// ClaimCursor returns the next sequence the group will hand out.
func (g *Group[T]) ClaimCursor() int64 { return g.claim.Load() }

// Pending returns the number of published sequences not yet claimed.
func (g *Group[T]) Pending() int64 {
	n := g.buf.write.Load() - g.claim.Load()
	if n < 0 {
		return 0
	}
	return n
}

// Backlog returns the number of sequences claimed but not yet completed.
func (g *Group[T]) Backlog() int64 {
	n := g.claim.Load() - g.cursor.Load() - 1
	if n < 0 {
		return 0
	}
	return n
}

// Lag returns how far the group's cursor trails the producers.
func (g *Group[T]) Lag() int64 {
	n := g.buf.write.Load() - 1 - g.cursor.Load()
	if n < 0 {
		return 0
	}
	return n
}

// TryClaim attempts to claim the next sequence for the given worker.
// Returns false when no published sequence is available, when the group is
// not active, or when a membership update is briefly in progress. Never
// blocks and never locks.
func (g *Group[T]) TryClaim(w *Worker) (int64, T, bool) {
	var zero T
	if GroupState(g.state.Load()) != GroupActive || g.paused.Load() {
		return 0, zero, false
	}
	for {
		c := g.claim.Load()
		if c >= g.buf.write.Load() {
			return 0, zero, false
		}
		if g.buf.seqs[c&g.buf.mask].Load() != c {
			// Reserved by a producer but not yet published.
			return 0, zero, false
		}
		if g.claim.CompareAndSwap(c, c+1) {
			w.inflight.Store(c)
			w.claimedAt.Store(time.Now().UnixNano())
			return c, g.buf.vals[c&g.buf.mask], true
		}
	}
}

// Complete marks a claimed sequence as fully processed by its worker and
// advances the group cursor across every contiguously completed sequence.
// Must be called exactly once per claimed sequence.
func (g *Group[T]) Complete(w *Worker, seq int64) {
	g.marks[seq&g.buf.mask].Store(seq)
	w.inflight.Store(slotEmpty)
	w.completed.Add(1)

	advanced := false
	for {
		cur := g.cursor.Load()
		next := cur + 1
		if g.marks[next&g.buf.mask].Load() != next {
			break
		}
		if g.cursor.CompareAndSwap(cur, next) {
			advanced = true
		}
	}
	if advanced {
		g.buf.cursorAdvanced()
	}
}

// AddWorker registers a new member and returns its record. Safe while
// claims are in flight: claim acceptance pauses only for the duration of the
// membership-list swap.
func (g *Group[T]) AddWorker() (*Worker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if GroupState(g.state.Load()) != GroupActive {
		return nil, ErrGroupClosed
	}
	w := &Worker{id: g.nextID.Add(1)}
	w.inflight.Store(slotEmpty)

	g.paused.Store(true)
	old := *g.members.Load()
	next := make([]*Worker, len(old)+1)
	copy(next, old)
	next[len(old)] = w
	g.members.Store(&next)
	g.paused.Store(false)
	return w, nil
}

// RemoveWorker deregisters a member. The caller must ensure the worker has
// completed its currently claimed sequence first; a removed worker with an
// outstanding claim would hold the cursor back forever.
func (g *Group[T]) RemoveWorker(w *Worker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w.retired.Store(true)

	g.paused.Store(true)
	old := *g.members.Load()
	next := make([]*Worker, 0, len(old))
	for _, m := range old {
		if m != w {
			next = append(next, m)
		}
	}
	g.members.Store(&next)
	g.paused.Store(false)
}

// Workers returns the current member count.
func (g *Group[T]) Workers() int { return len(*g.members.Load()) }

// Members returns a snapshot of the live member records.
func (g *Group[T]) Members() []*Worker { return *g.members.Load() }

// Stalled returns the members that have held a claim longer than timeout.
func (g *Group[T]) Stalled(timeout time.Duration) []*Worker {
	var out []*Worker
	now := time.Now().UnixNano()
	for _, w := range *g.members.Load() {
		if w.inflight.Load() == slotEmpty {
			continue
		}
		if now-w.claimedAt.Load() > int64(timeout) {
			out = append(out, w)
		}
	}
	return out
}

// Drain stops claim acceptance for orderly teardown; in-flight work
// completes normally.
func (g *Group[T]) Drain() {
	g.state.CompareAndSwap(int32(GroupActive), int32(GroupDraining))
}

// Halt stops claim acceptance on failure, per the halt-group error policy.
func (g *Group[T]) Halt() {
	g.state.CompareAndSwap(int32(GroupActive), int32(GroupHalted))
}

// Close transitions the group to its terminal state. Claims must already be
// finished; the cursor stops where it is and the buffer treats the group's
// final position as fixed for gating purposes.
func (g *Group[T]) Close() {
	g.state.Store(int32(GroupClosed))
	g.buf.detach(g)
}
