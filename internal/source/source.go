// Package source provides rate-limited synthetic producers for topologies
// that declare them. A source is the canonical producer-side user of the
// payload pool: each published payload buffer is retired under its sequence
// and reused only after every consumer group has moved past it.
package source

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/pipeline"
	"github.com/GriffinCanCode/Conduit/internal/ring"
)

// Config tunes one synthetic source.
type Config struct {
	Name string
	// Kind stamps every produced event; consumers can filter on it.
	Kind string
	// Rate is the target publish rate in events per second.
	Rate float64
	// Burst bounds the token bucket. Zero means a burst of one.
	Burst int
	// PayloadBytes is the size of the generated payload. Zero disables
	// payloads entirely.
	PayloadBytes int
}

// Source publishes synthetic events into one buffer at a bounded rate.
type Source struct {
	cfg     Config
	pipe    *pipeline.Pipeline
	buf     *pipeline.Buffer
	limiter *rate.Limiter
	pool    *ring.Pool[[]byte]
	log     *logging.Logger
	metrics *monitoring.Metrics

	produced atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a source feeding b. The payload pool is gated by b's
// watermark, so buffer memory cycles without allocation once the pool
// warms up.
func New(p *pipeline.Pipeline, b *pipeline.Buffer, cfg Config, log *logging.Logger, metrics *monitoring.Metrics) (*Source, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("source %q: rate must be positive", cfg.Name)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Kind == "" {
		cfg.Kind = "synthetic"
	}
	pool := ring.NewPool[[]byte](b.Ring().Watermark)
	b.Ring().OnWatermark(func(int64) {
		if n := pool.Reclaim(); n > 0 {
			metrics.RecordPoolReclaim(n, pool.Retired())
		}
	})
	return &Source{
		cfg:     cfg,
		pipe:    p,
		buf:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		pool:    pool,
		log:     log.Named("source." + cfg.Name),
		metrics: metrics,
	}, nil
}

// Start launches the producer loop. Stop cancels it.
func (s *Source) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.log.Info("source started",
		zap.String("buffer", s.buf.Name()),
		zap.Float64("rate", s.cfg.Rate),
		zap.Int("burst", s.cfg.Burst),
	)
}

// Stop halts the producer loop and waits for it to exit.
func (s *Source) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("source stopped", zap.Int64("produced", s.produced.Load()))
}

// Produced returns the number of events published so far.
func (s *Source) Produced() int64 { return s.produced.Load() }

func (s *Source) run(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		ev := pipeline.NewEvent(s.cfg.Kind, nil)
		var payload []byte
		if s.cfg.PayloadBytes > 0 {
			payload = s.nextPayload()
			ev.Payload = payload
		}
		seq, err := s.pipe.Publish(s.buf, ev)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("publish failed", zap.Error(err))
			}
			return
		}
		if payload != nil {
			// The payload stays referenced until every group passes seq.
			s.pool.Put(payload, seq)
		}
		s.produced.Add(1)
	}
}

// nextPayload reuses a reclaimed buffer when one is eligible, allocating
// otherwise.
func (s *Source) nextPayload() []byte {
	b, ok := s.pool.Get()
	if !ok || cap(b) < s.cfg.PayloadBytes {
		b = make([]byte, s.cfg.PayloadBytes)
	}
	b = b[:s.cfg.PayloadBytes]
	rand.Read(b)
	return b
}
