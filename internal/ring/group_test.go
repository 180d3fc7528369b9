package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runMembers drains the group with the given workers until cursor reaches
// last, recording every completion.
func runMembers(t *testing.T, g *Group[int], workers []*Worker, last int64, completions *sync.Map) *sync.WaitGroup {
	t.Helper()
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			var wtr Waiter
			for g.Cursor() < last && !w.retired.Load() {
				seq, _, ok := g.TryClaim(w)
				if !ok {
					_ = wtr.Pause(nil)
					continue
				}
				wtr.Reset()
				if n, loaded := completions.LoadOrStore(seq, 1); loaded {
					completions.Store(seq, n.(int)+1)
				}
				g.Complete(w, seq)
			}
		}(w)
	}
	return &wg
}

func assertExactlyOnce(t *testing.T, completions *sync.Map, last int64) {
	t.Helper()
	seen := int64(0)
	completions.Range(func(k, v any) bool {
		assert.Equal(t, 1, v.(int), "sequence %d duplicated", k)
		seen++
		return true
	})
	assert.Equal(t, last+1, seen, "missing completions")
}

func TestExactlyOnceManyWorkers(t *testing.T) {
	b, err := New[int]("test", 64)
	require.NoError(t, err)
	g := b.Attach("readers")

	const last = int64(2047)
	workers := make([]*Worker, 8)
	for i := range workers {
		w, err := g.AddWorker()
		require.NoError(t, err)
		workers[i] = w
	}

	var completions sync.Map
	wg := runMembers(t, g, workers, last, &completions)

	for i := int64(0); i <= last; i++ {
		b.Publish(int(i))
	}
	wg.Wait()

	assert.Equal(t, last, g.Cursor())
	assertExactlyOnce(t, &completions, last)
}

// Spec scenario: force a split (third worker) mid-stream around sequence 7,
// then a merge (remove a worker) around sequence 12; the completion set must
// still be exact.
func TestSplitMergeMidStream(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")

	const last = int64(15)
	w1, err := g.AddWorker()
	require.NoError(t, err)
	w2, err := g.AddWorker()
	require.NoError(t, err)

	var completions sync.Map
	wg := runMembers(t, g, []*Worker{w1, w2}, last, &completions)

	for i := int64(0); i <= last; i++ {
		b.Publish(int(i))
		switch i {
		case 7:
			w3, err := g.AddWorker()
			require.NoError(t, err)
			assert.Equal(t, 3, g.Workers())
			wg2 := runMembers(t, g, []*Worker{w3}, last, &completions)
			defer wg2.Wait()
		case 12:
			// Retire w2 cooperatively: its run loop stops claiming, then the
			// membership list is pruned.
			g.RemoveWorker(w2)
			assert.Equal(t, 2, g.Workers())
		}
	}
	wg.Wait()

	assert.Equal(t, last, g.Cursor())
	assertExactlyOnce(t, &completions, last)
}

func TestFanOutIndependence(t *testing.T) {
	b, err := New[int]("test", 16)
	require.NoError(t, err)
	fast := b.Attach("fast")
	slow := b.Attach("slow")
	fw, err := fast.AddWorker()
	require.NoError(t, err)
	sw, err := slow.AddWorker()
	require.NoError(t, err)

	const last = int64(9)
	for i := int64(0); i <= last; i++ {
		b.Publish(int(i))
	}

	// Fast group drains everything while slow has consumed nothing.
	for i := int64(0); i <= last; i++ {
		seq, _, ok := fast.TryClaim(fw)
		require.True(t, ok)
		fast.Complete(fw, seq)
	}
	assert.Equal(t, last, fast.Cursor())
	assert.Equal(t, int64(-1), slow.Cursor(), "sibling group cursors are independent")

	// Slow group still sees every sequence exactly once.
	for i := int64(0); i <= last; i++ {
		seq, v, ok := slow.TryClaim(sw)
		require.True(t, ok)
		assert.Equal(t, i, seq)
		assert.Equal(t, int(i), v)
		slow.Complete(sw, seq)
	}
	assert.Equal(t, last, slow.Cursor())
}

func TestGroupLifecycle(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)
	assert.Equal(t, GroupActive, g.State())

	b.Publish(1)
	g.Drain()
	assert.Equal(t, GroupDraining, g.State())

	_, _, ok := g.TryClaim(w)
	assert.False(t, ok, "draining group must refuse new claims")

	_, err = g.AddWorker()
	assert.ErrorIs(t, err, ErrGroupClosed)

	g.Close()
	assert.Equal(t, GroupClosed, g.State())
	assert.Empty(t, b.Groups(), "closed group must detach from the buffer")
}

func TestGroupHalt(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	b.Publish(1)
	g.Halt()
	assert.Equal(t, GroupHalted, g.State())
	_, _, ok := g.TryClaim(w)
	assert.False(t, ok)

	// Halt is sticky: draining a halted group does not reactivate it.
	g.Drain()
	assert.Equal(t, GroupHalted, g.State())
}

func TestStalledDetection(t *testing.T) {
	b, err := New[int]("test", 8)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)
	idle, err := g.AddWorker()
	require.NoError(t, err)

	b.Publish(1)
	seq, _, ok := g.TryClaim(w)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	stalled := g.Stalled(time.Millisecond)
	require.Len(t, stalled, 1, "only the holding worker is stalled")
	assert.Equal(t, w.ID(), stalled[0].ID())
	assert.Equal(t, seq, stalled[0].Inflight())
	assert.NotEqual(t, idle.ID(), stalled[0].ID())

	g.Complete(w, seq)
	assert.Empty(t, g.Stalled(time.Millisecond))
}

func TestBacklogPendingLag(t *testing.T) {
	b, err := New[int]("test", 16)
	require.NoError(t, err)
	g := b.Attach("readers")
	w, err := g.AddWorker()
	require.NoError(t, err)

	assert.Zero(t, g.Pending())
	assert.Zero(t, g.Backlog())
	assert.Zero(t, g.Lag())

	for i := 0; i < 6; i++ {
		b.Publish(i)
	}
	assert.Equal(t, int64(6), g.Pending())
	assert.Equal(t, int64(6), g.Lag())

	seq, _, ok := g.TryClaim(w)
	require.True(t, ok)
	assert.Equal(t, int64(5), g.Pending())
	assert.Equal(t, int64(1), g.Backlog())
	assert.Equal(t, int64(6), g.Lag())

	g.Complete(w, seq)
	assert.Equal(t, int64(0), g.Backlog())
	assert.Equal(t, int64(5), g.Lag())
}
