package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Event flow metrics
	EventsPublished *prometheus.CounterVec
	EventsCompleted *prometheus.CounterVec
	ClaimWait       *prometheus.HistogramVec
	Backlog         *prometheus.GaugeVec
	Pending         *prometheus.GaugeVec

	// Scheduler metrics
	Workers     *prometheus.GaugeVec
	ThreadSlots prometheus.Gauge
	Splits      *prometheus.CounterVec
	Merges      *prometheus.CounterVec
	Colocations *prometheus.CounterVec

	// Error metrics
	LogicErrors    *prometheus.CounterVec
	StalledWorkers *prometheus.CounterVec
	HaltedGroups   prometheus.Gauge

	// Reclamation metrics
	PoolReclaimed prometheus.Counter
	PoolRetained  prometheus.Gauge

	// HTTP surface metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Claim-wait quantile sampler for the JSON API
	waits *Sampler

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	EventsPublished int64 `json:"events_published"`
	EventsCompleted int64 `json:"events_completed"`
	LogicErrors     int64 `json:"logic_errors"`
	Stalls          int64 `json:"stalls"`
	Splits          int64 `json:"splits"`
	Merges          int64 `json:"merges"`
	ThreadSlots     int   `json:"thread_slots"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		waits:     NewSampler(4096),

		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_events_published_total",
				Help: "Total number of events published per buffer",
			},
			[]string{"buffer"},
		),
		EventsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_events_completed_total",
				Help: "Total number of events completed per consumer group",
			},
			[]string{"group"},
		),
		ClaimWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_claim_wait_seconds",
				Help:    "Time a worker waited idle before winning a claim",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1},
			},
			[]string{"group"},
		),
		Backlog: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_backlog",
				Help: "Sequences claimed but not yet completed per group",
			},
			[]string{"group"},
		),
		Pending: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_pending",
				Help: "Published sequences not yet claimed per group",
			},
			[]string{"group"},
		),

		Workers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_workers",
				Help: "Physical workers per processor",
			},
			[]string{"processor"},
		),
		ThreadSlots: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_thread_slots",
				Help: "Live thread slots in the scheduler pool",
			},
		),
		Splits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_splits_total",
				Help: "Total split decisions per processor",
			},
			[]string{"processor"},
		),
		Merges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_merges_total",
				Help: "Total merge decisions per processor",
			},
			[]string{"processor"},
		),
		Colocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_colocations_total",
				Help: "Total co-location moves per processor",
			},
			[]string{"processor"},
		),

		LogicErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_logic_errors_total",
				Help: "Handler failures per processor and applied policy",
			},
			[]string{"processor", "policy"},
		),
		StalledWorkers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_stalled_workers_total",
				Help: "Stalled-worker detections per processor",
			},
			[]string{"processor"},
		),
		HaltedGroups: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_halted_groups",
				Help: "Consumer groups currently halted by error policy",
			},
		),

		PoolReclaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "conduit_pool_reclaimed_total",
				Help: "Pooled payload buffers released by the epoch watermark",
			},
		),
		PoolRetained: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_pool_retained",
				Help: "Pooled payload buffers still gated by the watermark",
			},
		),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_http_requests_total",
				Help: "HTTP requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_ws_connections",
				Help: "Number of active WebSocket stats streams",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_uptime_seconds",
				Help: "Runtime uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordPublished records an event published to a buffer
func (m *Metrics) RecordPublished(buffer string) {
	m.EventsPublished.WithLabelValues(buffer).Inc()
	m.mu.Lock()
	m.snapshot.EventsPublished++
	m.mu.Unlock()
}

// RecordCompleted records an event completed by a group
func (m *Metrics) RecordCompleted(group string) {
	m.EventsCompleted.WithLabelValues(group).Inc()
	m.mu.Lock()
	m.snapshot.EventsCompleted++
	m.mu.Unlock()
}

// ObserveClaimWait records how long a worker idled before a claim
func (m *Metrics) ObserveClaimWait(group string, wait time.Duration) {
	m.ClaimWait.WithLabelValues(group).Observe(wait.Seconds())
	m.waits.Record(wait.Seconds())
}

// SetBacklog sets the claimed-but-uncompleted depth for a group
func (m *Metrics) SetBacklog(group string, n int64) {
	m.Backlog.WithLabelValues(group).Set(float64(n))
}

// SetPending sets the published-but-unclaimed depth for a group
func (m *Metrics) SetPending(group string, n int64) {
	m.Pending.WithLabelValues(group).Set(float64(n))
}

// SetWorkers sets the physical worker count for a processor
func (m *Metrics) SetWorkers(processor string, n int) {
	m.Workers.WithLabelValues(processor).Set(float64(n))
}

// SetThreadSlots sets the live thread-slot count
func (m *Metrics) SetThreadSlots(n int) {
	m.ThreadSlots.Set(float64(n))
	m.mu.Lock()
	m.snapshot.ThreadSlots = n
	m.mu.Unlock()
}

// RecordSplit records a split decision
func (m *Metrics) RecordSplit(processor string) {
	m.Splits.WithLabelValues(processor).Inc()
	m.mu.Lock()
	m.snapshot.Splits++
	m.mu.Unlock()
}

// RecordMerge records a merge decision
func (m *Metrics) RecordMerge(processor string) {
	m.Merges.WithLabelValues(processor).Inc()
	m.mu.Lock()
	m.snapshot.Merges++
	m.mu.Unlock()
}

// RecordColocation records a co-location move
func (m *Metrics) RecordColocation(processor string) {
	m.Colocations.WithLabelValues(processor).Inc()
}

// RecordLogicError records a handler failure and the policy applied
func (m *Metrics) RecordLogicError(processor, policy string) {
	m.LogicErrors.WithLabelValues(processor, policy).Inc()
	m.mu.Lock()
	m.snapshot.LogicErrors++
	m.mu.Unlock()
}

// RecordStall records a stalled-worker detection
func (m *Metrics) RecordStall(processor string) {
	m.StalledWorkers.WithLabelValues(processor).Inc()
	m.mu.Lock()
	m.snapshot.Stalls++
	m.mu.Unlock()
}

// IncHaltedGroups increments the halted-group gauge
func (m *Metrics) IncHaltedGroups() {
	m.HaltedGroups.Inc()
}

// RecordPoolReclaim records pooled buffers released by the watermark
func (m *Metrics) RecordPoolReclaim(released int, retained int64) {
	m.PoolReclaimed.Add(float64(released))
	m.PoolRetained.Set(float64(retained))
}

// IncWSConnections increments active WebSocket streams
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements active WebSocket streams
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns the current counter snapshot for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// ClaimWaitQuantiles returns smoothed claim-wait percentiles in seconds
func (m *Metrics) ClaimWaitQuantiles() Quantiles {
	return m.waits.Quantiles()
}
