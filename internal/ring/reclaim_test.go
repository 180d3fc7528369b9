package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermarkTracksSlowestGroup(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	fast := b.Attach("fast")
	slow := b.Attach("slow")
	fw, err := fast.AddWorker()
	require.NoError(t, err)
	sw, err := slow.AddWorker()
	require.NoError(t, err)

	assert.Equal(t, int64(-1), b.Watermark())

	for i := 0; i < 4; i++ {
		b.Publish(i)
	}
	assert.Equal(t, int64(-1), b.Watermark(), "nothing completed yet")

	for i := 0; i < 4; i++ {
		seq, _, ok := fast.TryClaim(fw)
		require.True(t, ok)
		fast.Complete(fw, seq)
	}
	assert.Equal(t, int64(-1), b.Watermark(), "slow group still gates")

	for i := 0; i < 2; i++ {
		seq, _, ok := slow.TryClaim(sw)
		require.True(t, ok)
		slow.Complete(sw, seq)
	}
	assert.Equal(t, int64(1), b.Watermark())
}

func TestWatermarkHookFiresOnAdvance(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int64
	b.OnWatermark(func(wm int64) {
		mu.Lock()
		seen = append(seen, wm)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		b.Publish(i)
		seq, _, ok := g.TryClaim(w)
		require.True(t, ok)
		g.Complete(w, seq)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{0, 1, 2}, seen)
}

// Wrap-around must reuse slots only after the slowest group passed them: the
// value read for a claimed sequence is always the one published under it.
func TestNoOverwriteBeforeGating(t *testing.T) {
	b, err := New[int]("test", 4)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	for round := 0; round < 10; round++ {
		for i := 0; i < 4; i++ {
			want := round*4 + i
			seq, err := b.TryPublish(want)
			require.NoError(t, err)
			assert.Equal(t, int64(want), seq)
		}
		_, err := b.TryPublish(-1)
		assert.ErrorIs(t, err, ErrBackpressure, "round %d", round)

		for i := 0; i < 4; i++ {
			seq, v, ok := g.TryClaim(w)
			require.True(t, ok)
			assert.Equal(t, int(seq), v, "slot content must match its sequence")
			g.Complete(w, seq)
		}
	}
}

func TestDetachReleasesGating(t *testing.T) {
	b, err := New[int]("test", 4)
	require.NoError(t, err)
	g := b.Attach("readers")

	for i := 0; i < 4; i++ {
		b.Publish(i)
	}
	_, err = b.TryPublish(4)
	require.ErrorIs(t, err, ErrBackpressure)

	g.Drain()
	g.Close()
	_, err = b.TryPublish(4)
	assert.NoError(t, err, "closed group must no longer gate producers")
}

func TestPoolGatedReuse(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)
	pool := AttachPool[[]byte](b)

	buf := make([]byte, 32)
	seq := b.Publish(7)
	pool.Put(buf, seq)

	_, ok := pool.Get()
	assert.False(t, ok, "memory is gated until the group passes its sequence")
	assert.Equal(t, int64(1), pool.Retired())

	cseq, _, ok := g.TryClaim(w)
	require.True(t, ok)
	g.Complete(w, cseq)

	got, ok := pool.Get()
	require.True(t, ok, "watermark advance must release the retired memory")
	assert.Equal(t, &buf[0], &got[0], "the same backing memory is recycled")
	assert.Zero(t, pool.Retired())
}

func TestPoolConcurrentPutGet(t *testing.T) {
	wm := int64(0)
	var mu sync.Mutex
	pool := NewPool[int](func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return wm
	})

	const items = 200
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < items; i++ {
				pool.Put(i, int64(p*items+i))
				pool.Reclaim()
				pool.Get()
			}
		}(p)
	}
	go func() {
		for i := 0; i < 4*items; i++ {
			mu.Lock()
			wm++
			mu.Unlock()
		}
	}()
	wg.Wait()

	// Everything becomes reclaimable once the watermark passes all sequences.
	mu.Lock()
	wm = 4 * items
	mu.Unlock()
	pool.Reclaim()
	assert.Zero(t, pool.Retired())
}

func TestReclamationErrorMessage(t *testing.T) {
	err := &ReclamationError{Buffer: "stage-in", Slot: 3, Occupant: 11, Sequence: 19, Watermark: 9}
	assert.Contains(t, err.Error(), "stage-in")
	assert.Contains(t, err.Error(), "slot 3")
	assert.Contains(t, err.Error(), "sequence 11")
}
