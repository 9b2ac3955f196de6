// Package metrics provides Prometheus metrics collection for the
// resolution engine: job scheduler throughput, state-machine transition
// counts, chain-adapter call latency and circuit-breaker state, and
// chain indexer lag.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// Handler returns the internal /metrics HTTP endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	// Job scheduler (C4)
	JobsEnqueued *prometheus.CounterVec
	JobsRun      *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	QueueDepth   *prometheus.GaugeVec

	// Resolution orchestrator (C5)
	TransitionsTotal *prometheus.CounterVec

	// Chain adapter (C2)
	ChainCallDuration *prometheus.HistogramVec
	ChainCallTotal    *prometheus.CounterVec
	CircuitState      *prometheus.GaugeVec

	// Chain indexer (C6)
	IndexerLag         *prometheus.GaugeVec
	IndexerLastIndexed *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default
// registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registerer,
// so tests can avoid colliding with the process-global default registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_jobs_enqueued_total",
				Help: "Total number of jobs enqueued, by queue and job type",
			},
			[]string{"queue", "job_type"},
		),
		JobsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_jobs_run_total",
				Help: "Total number of job executions, by queue, job type and outcome",
			},
			[]string{"queue", "job_type", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolution_job_duration_seconds",
				Help:    "Job handler execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"queue", "job_type"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolution_queue_depth",
				Help: "Current number of pending+scheduled jobs per queue",
			},
			[]string{"queue"},
		),

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_transitions_total",
				Help: "Total number of state transitions, by source and destination state",
			},
			[]string{"from", "to"},
		),

		ChainCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolution_chain_call_duration_seconds",
				Help:    "Chain adapter call duration in seconds, by operation",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ChainCallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_chain_calls_total",
				Help: "Total number of chain adapter calls, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolution_circuit_breaker_state",
				Help: "Circuit breaker state by name (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		IndexerLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolution_indexer_lag_blocks",
				Help: "Blocks between chain head and the indexer's last indexed block",
			},
			[]string{"network"},
		),
		IndexerLastIndexed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolution_indexer_last_indexed_block",
				Help: "Last block number successfully indexed",
			},
			[]string{"network"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.JobsEnqueued,
			m.JobsRun,
			m.JobDuration,
			m.QueueDepth,
			m.TransitionsTotal,
			m.ChainCallDuration,
			m.ChainCallTotal,
			m.CircuitState,
			m.IndexerLag,
			m.IndexerLastIndexed,
		)
	}

	return m
}

// RecordJobEnqueued records a job handed to the scheduler.
func (m *Metrics) RecordJobEnqueued(queue, jobType string) {
	m.JobsEnqueued.WithLabelValues(queue, jobType).Inc()
}

// RecordJobRun records the outcome and duration of a job handler
// invocation. outcome is expected to be "success" or "failure".
func (m *Metrics) RecordJobRun(queue, jobType, outcome string, duration time.Duration) {
	m.JobsRun.WithLabelValues(queue, jobType, outcome).Inc()
	m.JobDuration.WithLabelValues(queue, jobType).Observe(duration.Seconds())
}

// SetQueueDepth reports the current depth of queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordTransition records a single state-machine edge traversal.
func (m *Metrics) RecordTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordChainCall records the outcome and duration of a chain adapter
// call. outcome is expected to be "success" or "failure".
func (m *Metrics) RecordChainCall(operation, outcome string, duration time.Duration) {
	m.ChainCallTotal.WithLabelValues(operation, outcome).Inc()
	m.ChainCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetCircuitState reports the current state of the named circuit breaker.
func (m *Metrics) SetCircuitState(name string, state resilience.State) {
	m.CircuitState.WithLabelValues(name).Set(float64(state))
}

// SetIndexerLag reports the gap between chain head and the indexer's
// last indexed block for network, plus the last indexed block itself.
func (m *Metrics) SetIndexerLag(network string, head, lastIndexed uint64) {
	lag := int64(0)
	if head > lastIndexed {
		lag = int64(head - lastIndexed)
	}
	m.IndexerLag.WithLabelValues(network).Set(float64(lag))
	m.IndexerLastIndexed.WithLabelValues(network).Set(float64(lastIndexed))
}
