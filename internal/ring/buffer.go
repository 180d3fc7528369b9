package ring

import (
	"context"
	"sync"
	"sync/atomic"
)

// slotEmpty marks a slot that has never been published.
const slotEmpty = -1

// Buffer is a bounded multi-producer broadcast ring. Every attached Group
// observes the full sequence stream independently; within a group each
// sequence is claimed by exactly one member.
type Buffer[T any] struct {
	name     string
	capacity int64
	mask     int64

	// Producer side. The pad keeps the heavily contended write cursor off
	// the cache line of the shared read-side state below, mirroring the
	// layout of the hardware-inspired originals.
	write atomic.Int64
	_     [56]byte

	// Cached minimum group cursor. Producers gate against this and only
	// rescan the group list when the cache says the ring looks full.
	wmCache atomic.Int64
	_       [56]byte

	// Shared state. seqs[i] holds the sequence last published into slot i,
	// or slotEmpty; its store is the publication point for vals[i].
	seqs []atomic.Int64
	vals []T

	groups atomic.Pointer[[]*Group[T]]
	hooks  atomic.Pointer[[]func(int64)]

	// Guards attach and hook registration, which are construction-rate
	// operations. Never taken on the publish or claim path.
	mu sync.Mutex
}

// New creates a buffer with the given power-of-two capacity.
func New[T any](name string, capacity int) (*Buffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacity
	}
	b := &Buffer[T]{
		name:     name,
		capacity: int64(capacity),
		mask:     int64(capacity) - 1,
		seqs:     make([]atomic.Int64, capacity),
		vals:     make([]T, capacity),
	}
	for i := range b.seqs {
		b.seqs[i].Store(slotEmpty)
	}
	b.wmCache.Store(slotEmpty)
	empty := make([]*Group[T], 0)
	b.groups.Store(&empty)
	hooks := make([]func(int64), 0)
	b.hooks.Store(&hooks)
	return b, nil
}

// Name returns the buffer's name.
func (b *Buffer[T]) Name() string { return b.name }

// Capacity returns the fixed slot count.
func (b *Buffer[T]) Capacity() int64 { return b.capacity }

// WriteCursor returns the next sequence to be reserved by a producer.
func (b *Buffer[T]) WriteCursor() int64 { return b.write.Load() }

// Publish reserves the next sequence, stores the payload, and makes it
// visible to all attached groups. It blocks with spin-then-park while the
// buffer is full relative to its slowest group.
func (b *Buffer[T]) Publish(v T) int64 {
	seq, _ := b.publish(nil, v, true)
	return seq
}

// PublishContext is Publish with cancellation while parked on backpressure.
func (b *Buffer[T]) PublishContext(ctx context.Context, v T) (int64, error) {
	return b.publish(ctx, v, true)
}

// TryPublish publishes without blocking and reports ErrBackpressure when the
// buffer is full. Backpressure is an expected condition, not a failure.
func (b *Buffer[T]) TryPublish(v T) (int64, error) {
	return b.publish(nil, v, false)
}

func (b *Buffer[T]) publish(ctx context.Context, v T, block bool) (int64, error) {
	var w Waiter
	for {
		seq := b.write.Load()
		if seq > b.wmCache.Load()+b.capacity {
			// The cache may be stale; rescan before concluding full.
			if seq > b.reloadWatermark()+b.capacity {
				if !block {
					return 0, ErrBackpressure
				}
				if err := w.Pause(ctx); err != nil {
					return 0, err
				}
				continue
			}
		}
		if b.write.CompareAndSwap(seq, seq+1) {
			b.commit(seq, v)
			return seq, nil
		}
	}
}

// commit stores the payload and publishes it by storing the sequence field.
// The occupancy check is the reclamation safety net: the previous tenant of
// the slot must already be below every group's cursor, otherwise the claim
// protocol has been violated and continuing would hand a consumer torn data.
func (b *Buffer[T]) commit(seq int64, v T) {
	idx := seq & b.mask
	if old := b.seqs[idx].Load(); old != slotEmpty && old > b.wmCache.Load() {
		if wm := b.reloadWatermark(); old > wm {
			panic(&ReclamationError{
				Buffer:    b.name,
				Slot:      idx,
				Occupant:  old,
				Sequence:  seq,
				Watermark: wm,
			})
		}
	}
	b.vals[idx] = v
	b.seqs[idx].Store(seq)
}

// Attach registers a new consumer group starting at the current write
// cursor. Safe to call while producers are live: the group only ever claims
// sequences published after its attach point.
func (b *Buffer[T]) Attach(name string) *Group[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := newGroup(b, name, b.write.Load())
	old := *b.groups.Load()
	next := make([]*Group[T], len(old)+1)
	copy(next, old)
	next[len(old)] = g
	b.groups.Store(&next)
	return g
}

// Groups returns a snapshot of the attached groups.
func (b *Buffer[T]) Groups() []*Group[T] {
	return *b.groups.Load()
}

// cursorAdvanced is called by a group whose cursor moved forward. It
// refreshes the watermark cache and, when the minimum actually advanced,
// notifies registered observers (reclaim pools, completion tickets).
func (b *Buffer[T]) cursorAdvanced() {
	old := b.wmCache.Load()
	if wm := b.reloadWatermark(); wm > old {
		for _, fn := range *b.hooks.Load() {
			fn(wm)
		}
	}
}
