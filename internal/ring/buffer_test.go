package ring

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapacityValidation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"power of two", 8, false},
		{"one", 1, false},
		{"large power of two", 1 << 16, false},
		{"zero", 0, true},
		{"negative", -4, true},
		{"not a power of two", 12, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New[int]("test", tt.capacity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCapacity)
				assert.Nil(t, b)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(tt.capacity), b.Capacity())
			}
		})
	}
}

func TestPublishClaimInOrder(t *testing.T) {
	b, err := New[int]("test", 16)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		seq := b.Publish(i * 100)
		assert.Equal(t, int64(i), seq)
	}

	for i := 0; i < 10; i++ {
		seq, v, ok := g.TryClaim(w)
		require.True(t, ok)
		assert.Equal(t, int64(i), seq)
		assert.Equal(t, i*100, v)
		g.Complete(w, seq)
	}

	_, _, ok := g.TryClaim(w)
	assert.False(t, ok, "claim on empty buffer must report none available")
	assert.Equal(t, int64(9), g.Cursor())
}

func TestBackpressureBoundary(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	// Exactly capacity unconsumed events must succeed.
	for i := 0; i < 8; i++ {
		_, err := b.TryPublish(i)
		require.NoError(t, err, "publish %d within capacity", i)
	}

	// One more must hit backpressure, distinguishable from hard failure.
	_, err = b.TryPublish(8)
	assert.ErrorIs(t, err, ErrBackpressure)

	// Claim+complete frees exactly one slot of headroom.
	seq, _, ok := g.TryClaim(w)
	require.True(t, ok)
	g.Complete(w, seq)

	_, err = b.TryPublish(8)
	assert.NoError(t, err)
	_, err = b.TryPublish(9)
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestPublishBlocksUntilHeadroom(t *testing.T) {
	b, err := New[int]("test", 4)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		b.Publish(i)
	}

	done := make(chan int64, 1)
	go func() {
		done <- b.Publish(99)
	}()

	select {
	case <-done:
		t.Fatal("publish into a full buffer returned before headroom existed")
	case <-time.After(20 * time.Millisecond):
	}

	seq, _, ok := g.TryClaim(w)
	require.True(t, ok)
	g.Complete(w, seq)

	select {
	case seq := <-done:
		assert.Equal(t, int64(4), seq)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after headroom was freed")
	}
}

func TestPublishContextCanceled(t *testing.T) {
	b, err := New[int]("test", 2)
	require.NoError(t, err)
	b.Attach("readers")

	b.Publish(0)
	b.Publish(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.PublishContext(ctx, 2)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConcurrentProducersUniqueSequences(t *testing.T) {
	const producers = 4
	const perProducer = 500

	b, err := New[int]("test", 64)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	var mu sync.Mutex
	seqs := make([]int64, 0, producers*perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				seq := b.Publish(p*perProducer + i)
				mu.Lock()
				seqs = append(seqs, seq)
				mu.Unlock()
			}
		}(p)
	}

	// Drain continuously so producers never deadlock on backpressure.
	total := int64(producers * perProducer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		var wtr Waiter
		for g.Cursor() < total-1 {
			if seq, _, ok := g.TryClaim(w); ok {
				g.Complete(w, seq)
				wtr.Reset()
				continue
			}
			_ = wtr.Pause(nil)
		}
	}()

	wg.Wait()
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer failed to drain all published sequences")
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	require.Len(t, seqs, int(total))
	for i, s := range seqs {
		assert.Equal(t, int64(i), s, "sequences must be dense and unique")
	}
}

// Spec scenario: capacity 8, one group with two workers, publish 0..15 while
// workers randomly delay completion. The final cursor must be 15 and every
// sequence completed exactly once.
func TestTwoWorkersRandomDelays(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")

	const last = int64(15)
	var mu sync.Mutex
	completions := make(map[int64]int)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		w, err := g.AddWorker()
		require.NoError(t, err)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + w.ID()))
			var wtr Waiter
			for g.Cursor() < last {
				seq, _, ok := g.TryClaim(w)
				if !ok {
					_ = wtr.Pause(nil)
					continue
				}
				wtr.Reset()
				if rng.Intn(3) == 0 {
					time.Sleep(time.Duration(rng.Intn(500)) * time.Microsecond)
				}
				mu.Lock()
				completions[seq]++
				mu.Unlock()
				g.Complete(w, seq)
			}
		}(w)
	}

	for i := 0; i <= int(last); i++ {
		b.Publish(i)
	}
	wg.Wait()

	assert.Equal(t, last, g.Cursor())
	require.Len(t, completions, int(last)+1)
	for seq, n := range completions {
		assert.Equal(t, 1, n, "sequence %d completed %d times", seq, n)
	}
}
