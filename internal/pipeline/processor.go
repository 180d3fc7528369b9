package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/ring"
	"github.com/GriffinCanCode/Conduit/internal/sched"
	"github.com/GriffinCanCode/Conduit/internal/shared/id"
)

// Processor binds one upstream consumer group to user logic and zero or
// more downstream buffers. It implements sched.Target: the scheduler grows
// and shrinks its physical worker set purely through group membership, never
// touching buffer state.
type Processor struct {
	id          id.ProcessorID
	name        string
	pipe        *Pipeline
	upstream    *Group
	downstreams []*Buffer
	handler     Handler
	policy      ErrorPolicy
	maxWorkers  int

	waitEWMA *sched.EWMA
	nextIdx  atomic.Int64
	runners  sync.Map // worker ID -> *runner
	halted   atomic.Bool
}

// Name returns the processor's name.
func (p *Processor) Name() string { return p.name }

// Policy returns the configured failure policy.
func (p *Processor) Policy() ErrorPolicy { return p.policy }

// Halted reports whether the halt-group policy has fired.
func (p *Processor) Halted() bool { return p.halted.Load() }

// Load reports the scheduler's load signal: pending depth, in-flight
// backlog, and the smoothed claim wait.
func (p *Processor) Load() sched.Load {
	return sched.Load{
		Pending: p.upstream.rg.Pending(),
		Backlog: p.upstream.rg.Backlog(),
		Wait:    p.waitEWMA.Duration(),
	}
}

// Workers returns the current physical worker count.
func (p *Processor) Workers() int { return p.upstream.rg.Workers() }

// MaxWorkers returns the configured worker cap.
func (p *Processor) MaxWorkers() int { return p.maxWorkers }

// AddWorker registers one more member with the upstream group and returns
// the runner the scheduler will step. This is the whole cost of a split.
func (p *Processor) AddWorker() (sched.Runner, error) {
	w, err := p.upstream.rg.AddWorker()
	if err != nil {
		return nil, fmt.Errorf("pipeline: growing %q: %w", p.name, err)
	}
	ctx, cancel := context.WithCancel(p.pipe.ctx)
	r := &runner{
		proc:   p,
		worker: w,
		idx:    p.nextIdx.Add(1),
		ctx:    ctx,
		cancel: cancel,
	}
	p.runners.Store(w.ID(), r)
	return r, nil
}

// RemoveWorker asks a runner to retire. The runner finishes its in-flight
// claim, deregisters from the group, and only then reports Retired.
func (p *Processor) RemoveWorker(r sched.Runner) {
	if rr, ok := r.(*runner); ok {
		rr.retiring.Store(true)
	}
}

// runnerFor resolves a live worker record to its runner.
func (p *Processor) runnerFor(w *ring.Worker) *runner {
	if v, ok := p.runners.Load(w.ID()); ok {
		return v.(*runner)
	}
	return nil
}

// execute runs the handler for a claimed sequence and applies the
// processor's error policy. The caller completes the sequence afterwards in
// every path: even a halted group completes the claim it already holds so
// the watermark stays truthful.
func (p *Processor) execute(ctx context.Context, seq int64, ev Event) {
	attempts := 0
	for {
		out, err := p.handler(ctx, ev)
		if err == nil {
			p.emit(ctx, out)
			return
		}

		lerr := &LogicError{Processor: p.name, Seq: seq, Err: err}
		switch p.policy.Mode {
		case PolicyRetry:
			if attempts < p.policy.Retries {
				attempts++
				p.pipe.metrics.RecordLogicError(p.name, "retry")
				continue
			}
			p.pipe.metrics.RecordLogicError(p.name, "skip")
			p.pipe.log.Warn("handler failed after retries, skipping",
				zap.String("processor", p.name),
				zap.Int64("seq", seq),
				zap.Int("attempts", attempts+1),
				zap.Error(err),
			)
			return
		case PolicyHalt:
			p.pipe.metrics.RecordLogicError(p.name, "halt")
			if p.halted.CompareAndSwap(false, true) {
				p.upstream.rg.Halt()
				p.pipe.metrics.IncHaltedGroups()
				p.pipe.log.Error("handler failed, halting group",
					zap.String("processor", p.name),
					zap.String("group", p.upstream.name),
					zap.Int64("seq", seq),
					zap.Error(err),
				)
				p.pipe.surface(lerr)
			}
			return
		default: // PolicySkip
			p.pipe.metrics.RecordLogicError(p.name, "skip")
			p.pipe.log.Warn("handler failed, skipping",
				zap.String("processor", p.name),
				zap.Int64("seq", seq),
				zap.Error(err),
			)
			return
		}
	}
}

// emit publishes handler output to every downstream buffer in claim order.
func (p *Processor) emit(ctx context.Context, out []Event) {
	for _, b := range p.downstreams {
		for _, ev := range out {
			if _, err := b.rb.PublishContext(ctx, ev); err != nil {
				p.pipe.log.Warn("downstream publish dropped",
					zap.String("processor", p.name),
					zap.String("buffer", b.name),
					zap.Error(err),
				)
				return
			}
			p.pipe.metrics.RecordPublished(b.name)
		}
	}
}

// runner is one physical worker of a processor: the unit the scheduler
// assigns to thread slots.
type runner struct {
	proc   *Processor
	worker *ring.Worker
	idx    int64

	ctx    context.Context
	cancel context.CancelFunc

	// running is the trylock that makes slot-to-slot moves safe: a runner
	// never steps on two threads at once.
	running  atomic.Bool
	retiring atomic.Bool
	retired  atomic.Bool

	// Stall handling state, owned by the stall monitor.
	canceledAt atomic.Int64
	escalated  atomic.Bool

	idleSince time.Time
}

// ID returns a stable human-readable runner identifier.
func (r *runner) ID() string {
	return fmt.Sprintf("%s/w%d", r.proc.name, r.idx)
}

// Retired reports that the runner has fully left its consumer group.
func (r *runner) Retired() bool { return r.retired.Load() }

// Step performs at most one claim-process-complete cycle.
func (r *runner) Step(_ context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	defer r.running.Store(false)

	if r.retired.Load() {
		return false
	}
	if r.retiring.Load() {
		r.deregister()
		return false
	}

	g := r.proc.upstream
	seq, ev, ok := g.rg.TryClaim(r.worker)
	if !ok {
		if r.idleSince.IsZero() {
			r.idleSince = time.Now()
		}
		return false
	}
	if !r.idleSince.IsZero() {
		wait := time.Since(r.idleSince)
		r.proc.waitEWMA.ObserveDuration(wait)
		r.proc.pipe.metrics.ObserveClaimWait(g.name, wait)
		r.idleSince = time.Time{}
	}

	r.proc.execute(r.ctx, seq, ev)
	g.rg.Complete(r.worker, seq)
	r.proc.pipe.metrics.RecordCompleted(g.name)
	return true
}

// deregister leaves the consumer group exactly once. Safe here because a
// runner never holds a claim between steps.
func (r *runner) deregister() {
	if r.retired.CompareAndSwap(false, true) {
		r.proc.upstream.rg.RemoveWorker(r.worker)
		r.proc.runners.Delete(r.worker.ID())
		r.cancel()
	}
}

// cancelForStall cancels the runner's context and marks it for replacement.
// Called by the stall monitor; the runner completes its claim per policy
// when the handler finally observes cancellation, then retires.
func (r *runner) cancelForStall() {
	if r.canceledAt.CompareAndSwap(0, time.Now().UnixNano()) {
		r.retiring.Store(true)
		r.cancel()
	}
}
