package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/config"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/ring"
	"github.com/GriffinCanCode/Conduit/internal/sched"
	"github.com/GriffinCanCode/Conduit/internal/shared/id"
)

type pipelineState int32

const (
	stateBuilding pipelineState = iota
	stateRunning
	stateStopped
)

// Buffer is a named sequenced buffer within a pipeline.
type Buffer struct {
	id   id.BufferID
	name string
	rb   *ring.Buffer[Event]
	book *ticketBook
}

// Name returns the buffer's name.
func (b *Buffer) Name() string { return b.name }

// Ring exposes the underlying sequenced buffer, e.g. for attaching a
// payload reuse pool.
func (b *Buffer) Ring() *ring.Buffer[Event] { return b.rb }

// Group is a named logical consumer of one buffer.
type Group struct {
	id             id.GroupID
	name           string
	buffer         *Buffer
	rg             *ring.Group[Event]
	initialWorkers int
	proc           *Processor
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Pipeline owns the buffers, groups, processors, scheduler, and stall
// monitor of one event-processing graph. All state is explicit: construct,
// Start, Shutdown. No ambient statics.
type Pipeline struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	sched   *sched.Scheduler

	mu        sync.Mutex
	buffers   map[string]*Buffer
	groups    []*Group
	procs     map[string]*Processor
	procOrder []*Processor
	graph     *graph
	onError   func(error)

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// New creates an empty pipeline.
func New(cfg *config.Config, log *logging.Logger, metrics *monitoring.Metrics) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		sched: sched.New(sched.Config{
			MaxThreads:    cfg.Scheduler.MaxThreads,
			EvalInterval:  cfg.Scheduler.EvalInterval,
			SplitPending:  cfg.Scheduler.SplitPending,
			MergePending:  cfg.Scheduler.MergePending,
			MergeIdleWait: cfg.Scheduler.MergeIdleWait,
			Hysteresis:    cfg.Scheduler.Hysteresis,
			Cooldown:      cfg.Scheduler.Cooldown,
		}, log, metrics),
		buffers: make(map[string]*Buffer),
		procs:   make(map[string]*Processor),
		graph:   newGraph(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnError installs the operator-facing error callback for surfaced
// failures (halted groups, escalated stalls). Must be set before Start.
func (p *Pipeline) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *Pipeline) surface(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// CreateBuffer adds a named buffer. Capacity zero uses the configured
// default; otherwise it must be a power of two.
func (p *Pipeline) CreateBuffer(name string, capacity int) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load() != int32(stateBuilding) {
		return nil, ErrRunning
	}
	if _, ok := p.buffers[name]; ok {
		return nil, fmt.Errorf("pipeline: buffer %q already exists", name)
	}
	if capacity == 0 {
		capacity = p.cfg.Pipeline.DefaultCapacity
	}
	rb, err := ring.New[Event](name, capacity)
	if err != nil {
		return nil, fmt.Errorf("pipeline: buffer %q: %w", name, err)
	}
	b := &Buffer{
		id:   id.NewBufferID(),
		name: name,
		rb:   rb,
		book: newTicketBook(),
	}
	rb.OnWatermark(b.book.advance)
	p.buffers[name] = b
	p.graph.addNode(name)
	return b, nil
}

// AttachGroup registers a logical consumer on a buffer. initialWorkers is
// the worker count seeded when the pipeline starts.
func (p *Pipeline) AttachGroup(b *Buffer, name string, initialWorkers int) (*Group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load() != int32(stateBuilding) {
		return nil, ErrRunning
	}
	if initialWorkers < 1 {
		initialWorkers = 1
	}
	for _, g := range p.groups {
		if g.buffer == b && g.name == name {
			return nil, fmt.Errorf("pipeline: group %q already attached to buffer %q", name, b.name)
		}
	}
	g := &Group{
		id:             id.NewGroupID(),
		name:           name,
		buffer:         b,
		rg:             b.rb.Attach(name),
		initialWorkers: initialWorkers,
	}
	p.groups = append(p.groups, g)
	return g, nil
}

// Option customizes a processor at registration.
type Option func(*Processor)

// WithPolicy sets the processor's failure policy.
func WithPolicy(policy ErrorPolicy) Option {
	return func(pr *Processor) { pr.policy = policy }
}

// WithMaxWorkers caps the processor's physical workers.
func WithMaxWorkers(n int) Option {
	return func(pr *Processor) {
		if n >= 1 {
			pr.maxWorkers = n
		}
	}
}

// RegisterProcessor binds a handler between an upstream group and zero or
// more downstream buffers. Fails with GraphCycleError if the binding would
// close a cycle.
func (p *Pipeline) RegisterProcessor(name string, upstream *Group, downstreams []*Buffer, h Handler, opts ...Option) (*Processor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load() != int32(stateBuilding) {
		return nil, ErrRunning
	}
	if _, ok := p.procs[name]; ok {
		return nil, fmt.Errorf("pipeline: processor %q already exists", name)
	}
	if upstream.proc != nil {
		return nil, fmt.Errorf("pipeline: group %q already bound to processor %q", upstream.name, upstream.proc.name)
	}
	if h == nil {
		return nil, fmt.Errorf("pipeline: processor %q requires a handler", name)
	}

	targets := make([]string, len(downstreams))
	for i, d := range downstreams {
		targets[i] = d.name
	}
	if err := p.graph.connect(upstream.buffer.name, targets); err != nil {
		return nil, err
	}

	policy, err := ParsePolicy(p.cfg.Pipeline.ErrorPolicy)
	if err != nil {
		policy = DefaultErrorPolicy()
	}
	pr := &Processor{
		id:          id.NewProcessorID(),
		name:        name,
		pipe:        p,
		upstream:    upstream,
		downstreams: downstreams,
		handler:     h,
		policy:      policy,
		maxWorkers:  p.cfg.Pipeline.MaxWorkers,
		waitEWMA:    sched.NewEWMA(0.2),
	}
	for _, opt := range opts {
		opt(pr)
	}
	upstream.proc = pr
	p.procs[name] = pr
	p.procOrder = append(p.procOrder, pr)
	return pr, nil
}

// Start hands every processor to the scheduler and launches the stall
// monitor.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(stateBuilding), int32(stateRunning)) {
		return ErrRunning
	}
	p.sched.Start()
	for _, pr := range p.procOrder {
		if err := p.sched.Register(pr, pr.upstream.initialWorkers); err != nil {
			return err
		}
	}
	p.monitorStop = make(chan struct{})
	p.monitorDone = make(chan struct{})
	go p.monitor()
	p.log.Info("pipeline started",
		zap.Int("buffers", len(p.buffers)),
		zap.Int("processors", len(p.procOrder)),
	)
	return nil
}

// Publish publishes an event, blocking under backpressure until the
// pipeline shuts down.
func (p *Pipeline) Publish(b *Buffer, ev Event) (int64, error) {
	seq, err := b.rb.PublishContext(p.ctx, ev)
	if err != nil {
		return 0, err
	}
	p.metrics.RecordPublished(b.name)
	return seq, nil
}

// TryPublish publishes without blocking; ring.ErrBackpressure means the
// buffer is full, which is load, not failure.
func (p *Pipeline) TryPublish(b *Buffer, ev Event) (int64, error) {
	seq, err := b.rb.TryPublish(ev)
	if err != nil {
		return 0, err
	}
	p.metrics.RecordPublished(b.name)
	return seq, nil
}

// PublishAwait publishes and returns a Ticket that becomes ready once every
// group attached to the buffer has completed the sequence.
func (p *Pipeline) PublishAwait(ctx context.Context, b *Buffer, ev Event) (*Ticket, error) {
	seq, err := b.rb.PublishContext(ctx, ev)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordPublished(b.name)
	return b.book.issue(seq, b.rb.Watermark), nil
}

// monitor scans for stalled workers and refreshes depth gauges.
func (p *Pipeline) monitor() {
	defer close(p.monitorDone)
	ticker := time.NewTicker(p.cfg.Stall.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.monitorStop:
			return
		case <-ticker.C:
			p.scanStalls()
			p.refreshGauges()
		}
	}
}

func (p *Pipeline) scanStalls() {
	for _, pr := range p.procOrder {
		for _, w := range pr.upstream.rg.Stalled(p.cfg.Stall.ClaimTimeout) {
			r := pr.runnerFor(w)
			if r == nil {
				continue
			}
			canceledAt := r.canceledAt.Load()
			if canceledAt == 0 {
				// First detection: cancel cooperatively and grow a
				// replacement so the group keeps moving.
				p.metrics.RecordStall(pr.name)
				p.log.Warn("stalled worker canceled",
					zap.String("processor", pr.name),
					zap.Int64("worker", w.ID()),
					zap.Int64("seq", w.Inflight()),
				)
				r.cancelForStall()
				p.sched.Grow(pr.name)
				continue
			}
			held := time.Since(time.Unix(0, canceledAt))
			if held > p.cfg.Stall.Grace && r.escalated.CompareAndSwap(false, true) {
				// The worker ignored cancellation. Its claim now blocks the
				// group watermark indefinitely; this is fatal to the stage.
				serr := &StallError{
					Processor: pr.name,
					Worker:    w.ID(),
					Seq:       w.Inflight(),
					Held:      p.cfg.Stall.ClaimTimeout + held,
				}
				p.log.Error("stalled worker ignored cancellation",
					zap.String("processor", pr.name),
					zap.Int64("worker", w.ID()),
					zap.Int64("seq", serr.Seq),
					zap.Duration("held", serr.Held),
				)
				p.surface(serr)
			}
		}
	}
}

func (p *Pipeline) refreshGauges() {
	for _, g := range p.groups {
		p.metrics.SetPending(g.name, g.rg.Pending())
		p.metrics.SetBacklog(g.name, g.rg.Backlog())
	}
}

// Shutdown drains every stage in topological order (sources first, so
// upstream processors flush their owed downstream publishes), then stops
// the scheduler and joins all thread slots.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(stateRunning), int32(stateStopped)) {
		return ErrNotRunning
	}
	close(p.monitorStop)
	<-p.monitorDone

	var errs []error
	for _, bufName := range p.graph.order() {
		b := p.buffers[bufName]
		for _, g := range p.groups {
			if g.buffer != b {
				continue
			}
			if err := p.drainGroup(ctx, g); err != nil {
				errs = append(errs, err)
			}
		}
	}

	p.sched.Stop()
	p.cancel()
	p.log.Info("pipeline stopped")
	return errors.Join(errs...)
}

func (p *Pipeline) drainGroup(ctx context.Context, g *Group) error {
	switch g.rg.State() {
	case ring.GroupActive:
		if g.proc != nil || g.rg.Workers() > 0 {
			var w ring.Waiter
			for g.rg.Lag() > 0 {
				if err := w.Pause(ctx); err != nil {
					return fmt.Errorf("pipeline: draining group %q: %w", g.name, err)
				}
			}
		}
		g.rg.Drain()
	case ring.GroupHalted:
		p.log.Warn("halted group abandoned undrained",
			zap.String("group", g.name),
			zap.Int64("lag", g.rg.Lag()),
		)
	}

	if g.proc != nil {
		if err := p.sched.Deregister(ctx, g.proc.name); err != nil {
			return err
		}
	}
	g.rg.Close()
	return nil
}

// BufferStats describes one buffer for the stats API.
type BufferStats struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Capacity    int64        `json:"capacity"`
	WriteCursor int64        `json:"write_cursor"`
	Watermark   int64        `json:"watermark"`
	Groups      []GroupStats `json:"groups"`
}

// GroupStats describes one consumer group for the stats API.
type GroupStats struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Cursor    int64  `json:"cursor"`
	Claim     int64  `json:"claim_cursor"`
	Pending   int64  `json:"pending"`
	Backlog   int64  `json:"backlog"`
	Workers   int    `json:"workers"`
	Processor string `json:"processor,omitempty"`
}

// Stats is a full point-in-time view of the pipeline.
type Stats struct {
	Running   bool                 `json:"running"`
	Buffers   []BufferStats        `json:"buffers"`
	Slots     []sched.SlotView     `json:"slots"`
	Counters  monitoring.Snapshot  `json:"counters"`
	ClaimWait monitoring.Quantiles `json:"claim_wait"`
}

// Snapshot assembles the stats view served by the HTTP surface.
func (p *Pipeline) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Running:   p.state.Load() == int32(stateRunning),
		Slots:     p.sched.Snapshot(),
		Counters:  p.metrics.GetSnapshot(),
		ClaimWait: p.metrics.ClaimWaitQuantiles(),
	}
	for _, name := range p.graph.order() {
		b := p.buffers[name]
		bs := BufferStats{
			ID:          b.id.String(),
			Name:        b.name,
			Capacity:    b.rb.Capacity(),
			WriteCursor: b.rb.WriteCursor(),
			Watermark:   b.rb.Watermark(),
		}
		for _, g := range p.groups {
			if g.buffer != b {
				continue
			}
			gs := GroupStats{
				ID:      g.id.String(),
				Name:    g.name,
				State:   g.rg.State().String(),
				Cursor:  g.rg.Cursor(),
				Claim:   g.rg.ClaimCursor(),
				Pending: g.rg.Pending(),
				Backlog: g.rg.Backlog(),
				Workers: g.rg.Workers(),
			}
			if g.proc != nil {
				gs.Processor = g.proc.name
			}
			bs.Groups = append(bs.Groups, gs)
		}
		st.Buffers = append(st.Buffers, bs)
	}
	return st
}
