package ring

import "sync/atomic"

type poolNode[T any] struct {
	v    T
	seq  int64
	next *poolNode[T]
}

// Pool recycles externally allocated payload memory (for example byte
// buffers referenced by events) under the buffer's epoch watermark. Put
// retires an item under the sequence that references it; the item becomes
// obtainable again only once that sequence is below every attached group's
// cursor. Both lists are Treiber stacks, so Get and Put are always
// lock-free; Reclaim does the migration work and is intended to run from an
// OnWatermark hook. The trade is lower free-side throughput for reads that
// never block, which is the design goal.
type Pool[T any] struct {
	free      atomic.Pointer[poolNode[T]]
	retired   atomic.Pointer[poolNode[T]]
	nRetired  atomic.Int64
	watermark func() int64
}

// NewPool creates a pool gated by the given watermark source, typically
// (*Buffer).Watermark of the buffer whose events reference the memory.
func NewPool[T any](watermark func() int64) *Pool[T] {
	return &Pool[T]{watermark: watermark}
}

// AttachPool creates a pool gated by b's watermark and wires its reclaim
// step to b's cursor advances.
func AttachPool[T any, E any](b *Buffer[E]) *Pool[T] {
	p := NewPool[T](b.Watermark)
	b.OnWatermark(func(int64) { p.Reclaim() })
	return p
}

// Get pops a reusable item, or reports false when none is eligible yet.
func (p *Pool[T]) Get() (T, bool) {
	for {
		head := p.free.Load()
		if head == nil {
			var zero T
			return zero, false
		}
		if p.free.CompareAndSwap(head, head.next) {
			return head.v, true
		}
	}
}

// Put retires an item under the sequence that still references it.
func (p *Pool[T]) Put(v T, seq int64) {
	n := &poolNode[T]{v: v, seq: seq}
	for {
		head := p.retired.Load()
		n.next = head
		if p.retired.CompareAndSwap(head, n) {
			p.nRetired.Add(1)
			return
		}
	}
}

// Reclaim migrates retired items whose gating sequence is at or below the
// watermark onto the free list. Safe to call concurrently; items that are
// still gated are re-retired untouched.
func (p *Pool[T]) Reclaim() int {
	if p.nRetired.Load() == 0 {
		return 0
	}
	head := p.retired.Swap(nil)
	if head == nil {
		return 0
	}
	wm := p.watermark()
	moved := 0
	for n := head; n != nil; {
		next := n.next
		if n.seq <= wm {
			for {
				fh := p.free.Load()
				n.next = fh
				if p.free.CompareAndSwap(fh, n) {
					break
				}
			}
			p.nRetired.Add(-1)
			moved++
		} else {
			for {
				rh := p.retired.Load()
				n.next = rh
				if p.retired.CompareAndSwap(rh, n) {
					break
				}
			}
		}
		n = next
	}
	return moved
}

// Retired returns the number of items still gated by the watermark.
func (p *Pool[T]) Retired() int64 { return p.nRetired.Load() }
