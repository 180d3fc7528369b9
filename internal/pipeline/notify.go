package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ticket is the completion handle optionally returned by PublishAwait. It
// becomes ready once every group attached to the published buffer has
// advanced past the sequence. The primitive is a bare channel close so any
// external future or promise adapter can wrap it without the core taking a
// dependency on an async runtime.
type Ticket struct {
	seq  int64
	done chan struct{}
}

// Sequence returns the published sequence the ticket tracks.
func (t *Ticket) Sequence() int64 { return t.seq }

// Done returns a channel closed once the sequence is fully consumed.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the ticket is ready or ctx expires.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ticketBook tracks outstanding tickets for one buffer. The completion hot
// path pays one atomic load when no tickets exist; the mutex is taken only
// while tickets are actually pending.
type ticketBook struct {
	mu      sync.Mutex
	pending []*Ticket
	count   atomic.Int64
}

func newTicketBook() *ticketBook {
	return &ticketBook{}
}

// issue creates a ticket for seq. A sequence already below the watermark
// yields a ready ticket immediately. The watermark is re-read after the
// ticket is inserted: an advance racing the insert can observe count zero
// and skip the lock, so the re-check fires the ticket in that window.
func (bk *ticketBook) issue(seq int64, watermark func() int64) *Ticket {
	t := &Ticket{seq: seq, done: make(chan struct{})}
	if seq <= watermark() {
		close(t.done)
		return t
	}
	bk.mu.Lock()
	bk.pending = append(bk.pending, t)
	bk.count.Store(int64(len(bk.pending)))
	bk.mu.Unlock()
	if wm := watermark(); seq <= wm {
		bk.advance(wm)
	}
	return t
}

// advance fires every ticket at or below the new watermark.
func (bk *ticketBook) advance(watermark int64) {
	if bk.count.Load() == 0 {
		return
	}
	bk.mu.Lock()
	kept := bk.pending[:0]
	for _, t := range bk.pending {
		if t.seq <= watermark {
			close(t.done)
		} else {
			kept = append(kept, t)
		}
	}
	bk.pending = kept
	bk.count.Store(int64(len(bk.pending)))
	bk.mu.Unlock()
}
