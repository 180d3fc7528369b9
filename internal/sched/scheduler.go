package sched

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
)

// Target is the scheduler's view of a processor: a load signal plus the
// ability to grow or shrink its physical worker set. Adding a worker only
// registers a new member with the processor's upstream group, so the
// scheduler never touches buffer or slot state.
type Target interface {
	Name() string
	Load() Load
	Workers() int
	MaxWorkers() int
	AddWorker() (Runner, error)
	RemoveWorker(Runner)
}

// Config tunes the scheduler. Thresholds are tunables; the hysteresis
// window and cool-down must be non-zero for the scheduler to be stable.
type Config struct {
	// MaxThreads bounds the thread-slot pool. Zero means GOMAXPROCS.
	MaxThreads int
	// EvalInterval is the period between load evaluations.
	EvalInterval time.Duration
	// SplitPending is the high-water pending depth that marks a processor
	// overloaded.
	SplitPending int64
	// MergePending is the low-water pending depth that marks a processor
	// idle.
	MergePending int64
	// MergeIdleWait is the minimum smoothed claim-wait for a processor to
	// count as idle.
	MergeIdleWait time.Duration
	// Hysteresis is the number of consecutive evaluations a signal must
	// hold before the scheduler acts on it.
	Hysteresis int
	// Cooldown is the minimum time between changes to one processor.
	Cooldown time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxThreads:    runtime.GOMAXPROCS(0),
		EvalInterval:  50 * time.Millisecond,
		SplitPending:  64,
		MergePending:  1,
		MergeIdleWait: time.Millisecond,
		Hysteresis:    3,
		Cooldown:      500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxThreads <= 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.EvalInterval <= 0 {
		c.EvalInterval = d.EvalInterval
	}
	if c.SplitPending <= 0 {
		c.SplitPending = d.SplitPending
	}
	if c.MergeIdleWait <= 0 {
		c.MergeIdleWait = d.MergeIdleWait
	}
	if c.Hysteresis <= 0 {
		c.Hysteresis = d.Hysteresis
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

type targetState struct {
	target      Target
	assignments map[Runner]*slot
	retiring    map[Runner]bool
	hot         int
	cold        int
	lastChange  time.Time
}

// Scheduler owns the thread-slot pool and the processor-to-slot mapping.
// Explicit Start/Stop lifecycle, no ambient state: everything that needs to
// request reassignment holds a handle.
type Scheduler struct {
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	slots   []*slot
	nextID  int
	targets map[string]*targetState

	ctx      context.Context
	cancel   context.CancelFunc
	evalDone chan struct{}
	started  bool
}

// New creates a scheduler. Call Start before registering targets.
func New(cfg Config, log *logging.Logger, metrics *monitoring.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: metrics,
		targets: make(map[string]*targetState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the evaluation loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.evalDone = make(chan struct{})
	go s.evalLoop()
	s.log.Info("scheduler started",
		zap.Int("max_threads", s.cfg.MaxThreads),
		zap.Duration("eval_interval", s.cfg.EvalInterval),
	)
}

// Stop halts evaluation and joins every thread slot.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	done := s.evalDone
	slots := s.slots
	s.slots = nil
	s.mu.Unlock()

	<-done
	for _, sl := range slots {
		sl.halt()
	}
	s.log.Info("scheduler stopped")
}

// Register adds a target with the given number of initial workers, each
// placed on a thread slot.
func (s *Scheduler) Register(t Target, initialWorkers int) error {
	if initialWorkers < 1 {
		initialWorkers = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[t.Name()]; ok {
		return fmt.Errorf("sched: target %q already registered", t.Name())
	}
	ts := &targetState{
		target:      t,
		assignments: make(map[Runner]*slot),
		retiring:    make(map[Runner]bool),
		lastChange:  time.Now(),
	}
	for i := 0; i < initialWorkers; i++ {
		r, err := t.AddWorker()
		if err != nil {
			return fmt.Errorf("sched: seeding %q: %w", t.Name(), err)
		}
		s.place(ts, r)
	}
	s.targets[t.Name()] = ts
	s.metrics.SetWorkers(t.Name(), len(ts.assignments))
	s.log.Info("target registered",
		zap.String("target", t.Name()),
		zap.Int("workers", initialWorkers),
	)
	return nil
}

// Deregister retires every worker of the named target and waits for them to
// leave their consumer group, bounded by ctx.
func (s *Scheduler) Deregister(ctx context.Context, name string) error {
	s.mu.Lock()
	ts, ok := s.targets[name]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	runners := make([]Runner, 0, len(ts.assignments))
	for r := range ts.assignments {
		runners = append(runners, r)
		ts.retiring[r] = true
	}
	s.mu.Unlock()

	for _, r := range runners {
		ts.target.RemoveWorker(r)
	}
	for _, r := range runners {
		for !r.Retired() {
			select {
			case <-ctx.Done():
				return fmt.Errorf("sched: deregistering %q: %w", name, ctx.Err())
			case <-time.After(100 * time.Microsecond):
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for r, sl := range ts.assignments {
		sl.remove(r)
	}
	delete(s.targets, name)
	s.metrics.SetWorkers(name, 0)
	s.log.Info("target deregistered", zap.String("target", name))
	return nil
}

// Grow immediately adds one worker to the named target, bypassing
// hysteresis. Used by the stall monitor to replace a canceled worker.
func (s *Scheduler) Grow(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.targets[name]
	if !ok {
		return false
	}
	if !s.split(ts, ts.target.Load()) {
		return false
	}
	ts.lastChange = time.Now()
	return true
}

func (s *Scheduler) evalLoop() {
	defer close(s.evalDone)
	ticker := time.NewTicker(s.cfg.EvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Evaluate()
		}
	}
}

// Evaluate performs one load-evaluation pass. Exposed so tests can drive
// the scheduler deterministically without the ticker.
func (s *Scheduler) Evaluate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()

	now := time.Now()
	for _, ts := range s.targets {
		load := ts.target.Load()
		hot := load.Pending >= s.cfg.SplitPending
		cold := load.Pending <= s.cfg.MergePending && load.Wait >= s.cfg.MergeIdleWait

		if hot {
			ts.hot++
			ts.cold = 0
		} else if cold {
			ts.cold++
			ts.hot = 0
		} else {
			ts.hot = 0
			ts.cold = 0
		}

		if now.Sub(ts.lastChange) < s.cfg.Cooldown {
			continue
		}
		switch {
		case ts.hot >= s.cfg.Hysteresis:
			if s.split(ts, load) {
				ts.lastChange = now
			}
			ts.hot = 0
		case ts.cold >= s.cfg.Hysteresis:
			if s.merge(ts, load) {
				ts.lastChange = now
			}
			ts.cold = 0
		}
	}
	s.metrics.SetThreadSlots(len(s.slots))
}

// prune drops runners that have fully deregistered from their groups.
func (s *Scheduler) prune() {
	for _, ts := range s.targets {
		for r, sl := range ts.assignments {
			if r.Retired() {
				sl.remove(r)
				delete(ts.assignments, r)
				delete(ts.retiring, r)
				s.metrics.SetWorkers(ts.target.Name(), len(ts.assignments))
			}
		}
	}
	s.retireEmptySlots()
}

func (s *Scheduler) liveWorkers(ts *targetState) int {
	return len(ts.assignments) - len(ts.retiring)
}

// split adds one physical worker for an overloaded target.
func (s *Scheduler) split(ts *targetState, load Load) bool {
	if s.liveWorkers(ts) >= ts.target.MaxWorkers() {
		return false
	}
	r, err := ts.target.AddWorker()
	if err != nil {
		s.log.Warn("split rejected",
			zap.String("target", ts.target.Name()),
			zap.Error(err),
		)
		return false
	}
	sl := s.place(ts, r)
	s.metrics.RecordSplit(ts.target.Name())
	s.metrics.SetWorkers(ts.target.Name(), len(ts.assignments))
	s.log.Info("split",
		zap.String("target", ts.target.Name()),
		zap.Int64("pending", load.Pending),
		zap.Int("workers", s.liveWorkers(ts)),
		zap.Int("slot", sl.id),
	)
	return true
}

// merge removes a surplus worker, or co-locates a single-worker target onto
// a shared slot so its thread can be reclaimed.
func (s *Scheduler) merge(ts *targetState, load Load) bool {
	if s.liveWorkers(ts) > 1 {
		var victim Runner
		for r := range ts.assignments {
			if !ts.retiring[r] {
				victim = r
				break
			}
		}
		if victim == nil {
			return false
		}
		ts.retiring[victim] = true
		ts.target.RemoveWorker(victim)
		s.metrics.RecordMerge(ts.target.Name())
		s.log.Info("merge",
			zap.String("target", ts.target.Name()),
			zap.Duration("claim_wait", load.Wait),
			zap.Int("workers", s.liveWorkers(ts)),
		)
		return true
	}
	return s.coLocate(ts)
}

// coLocate moves a lone runner onto the least-loaded other slot. The brief
// window where both slots see the runner is harmless: Step is guarded by a
// per-runner trylock, so it never executes on two threads at once.
func (s *Scheduler) coLocate(ts *targetState) bool {
	var r Runner
	for or := range ts.assignments {
		r = or
	}
	if r == nil {
		return false
	}
	cur := ts.assignments[r]
	if cur == nil || cur.size() > 1 {
		return false
	}
	var dest *slot
	for _, sl := range s.slots {
		if sl == cur {
			continue
		}
		if dest == nil || sl.size() < dest.size() {
			dest = sl
		}
	}
	if dest == nil {
		return false
	}
	dest.add(r)
	cur.remove(r)
	ts.assignments[r] = dest
	s.metrics.RecordColocation(ts.target.Name())
	s.log.Info("co-located",
		zap.String("target", ts.target.Name()),
		zap.Int("from_slot", cur.id),
		zap.Int("to_slot", dest.id),
	)
	s.retireEmptySlots()
	return true
}

// place assigns a runner to an empty slot, a new slot while under the
// thread bound, or otherwise the least-loaded slot.
func (s *Scheduler) place(ts *targetState, r Runner) *slot {
	var dest *slot
	for _, sl := range s.slots {
		if sl.size() == 0 {
			dest = sl
			break
		}
	}
	if dest == nil && len(s.slots) < s.cfg.MaxThreads {
		dest = newSlot(s.nextID)
		s.nextID++
		s.slots = append(s.slots, dest)
		go dest.run(s.ctx)
	}
	if dest == nil {
		for _, sl := range s.slots {
			if dest == nil || sl.size() < dest.size() {
				dest = sl
			}
		}
	}
	dest.add(r)
	ts.assignments[r] = dest
	return dest
}

// retireEmptySlots joins slots with no runners, always keeping one so the
// next placement is cheap.
func (s *Scheduler) retireEmptySlots() {
	kept := make([]*slot, 0, len(s.slots))
	var empties []*slot
	for _, sl := range s.slots {
		if sl.size() == 0 {
			empties = append(empties, sl)
		} else {
			kept = append(kept, sl)
		}
	}
	if len(kept) == 0 && len(empties) > 0 {
		kept = append(kept, empties[0])
		empties = empties[1:]
	}
	for _, sl := range empties {
		sl.halt()
	}
	s.slots = kept
}

// SlotView describes one thread slot for introspection.
type SlotView struct {
	ID      int      `json:"id"`
	Steps   int64    `json:"steps"`
	Runners []string `json:"runners"`
}

// Snapshot returns the current slot-to-runner mapping.
func (s *Scheduler) Snapshot() []SlotView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotView, 0, len(s.slots))
	for _, sl := range s.slots {
		v := SlotView{ID: sl.id, Steps: sl.steps.Load()}
		for _, r := range *sl.runners.Load() {
			v.Runners = append(v.Runners, r.ID())
		}
		out = append(out, v)
	}
	return out
}
