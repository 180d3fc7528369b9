package ring

// Epoch reclamation for the buffer: slot storage is reclaimed implicitly by
// the overwrite gate, so all that is tracked here is the per-buffer
// watermark (minimum group cursor) plus the observer hooks that let pooled
// payload memory and completion tickets react to it advancing. Readers never
// block on any of this; the scan is O(attached groups) and runs only on
// cursor advance or when a producer finds its cached watermark exhausted.

// Watermark returns the highest sequence provably unreachable by any
// current or future claim on this buffer. Slots at or below it are eligible
// for overwrite, and externally pooled payload memory retired under a
// sequence at or below it may be reused.
func (b *Buffer[T]) Watermark() int64 {
	return b.reloadWatermark()
}

// reloadWatermark rescans the attached groups and advances the cached
// minimum. Group cursors are monotone and new groups attach at the write
// cursor, so the minimum never regresses; the cache moves strictly forward
// under CAS.
func (b *Buffer[T]) reloadWatermark() int64 {
	gs := *b.groups.Load()
	min := b.write.Load() - 1
	for _, g := range gs {
		if c := g.cursor.Load(); c < min {
			min = c
		}
	}
	for {
		cur := b.wmCache.Load()
		if min <= cur {
			return cur
		}
		if b.wmCache.CompareAndSwap(cur, min) {
			return min
		}
	}
}

// OnWatermark registers an observer invoked with the new watermark whenever
// it advances. Observers run on the completing worker's goroutine and must
// be cheap; anything expensive belongs behind a pending-work check the way
// Pool.Reclaim and the completion tickets do it.
func (b *Buffer[T]) OnWatermark(fn func(int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := *b.hooks.Load()
	next := make([]func(int64), len(old)+1)
	copy(next, old)
	next[len(old)] = fn
	b.hooks.Store(&next)
}

// detach removes a closed group from the gating set. Its cursor no longer
// holds producers back, which may advance the watermark immediately.
func (b *Buffer[T]) detach(g *Group[T]) {
	b.mu.Lock()
	old := *b.groups.Load()
	next := make([]*Group[T], 0, len(old))
	for _, og := range old {
		if og != g {
			next = append(next, og)
		}
	}
	b.groups.Store(&next)
	b.mu.Unlock()
	b.cursorAdvanced()
}
