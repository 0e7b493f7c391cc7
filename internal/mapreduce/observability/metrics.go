// Package observability exposes Prometheus metrics for a running job:
// phase transitions, agent dispatch/outcome counts, retry/backoff
// activity, DLQ growth, and checkpoint write latency.
//
// Grounded on the teacher's pkg/observability/{config,metrics}.go — the
// same nil-receiver-is-a-no-op Metrics type (so call sites never branch
// on whether metrics are enabled) and the same CounterVec/HistogramVec
// layout keyed by Namespace/Subsystem/Name. Trimmed to the Prometheus
// exporter only: the teacher also wires OpenTelemetry tracing, but
// nothing in this module's domain (a sequential phase coordinator, not
// a request-serving tree of spans) has a comparable span hierarchy to
// export, so the tracer and its exporters were not carried over (see
// DESIGN.md).
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics subsystem.
type Config struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

func (c *Config) setDefaults() {
	if c.Namespace == "" {
		c.Namespace = "prodigy"
	}
}

// Metrics collects every counter/histogram this module emits. A nil
// *Metrics is a valid, inert receiver: every Record/Observe method
// checks for it first, so callers never need an `if metrics != nil`
// guard of their own.
type Metrics struct {
	registry *prometheus.Registry

	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	phaseDuration *prometheus.HistogramVec

	agentDispatched *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec
	agentOutcomes   *prometheus.CounterVec
	agentsActive    prometheus.Gauge

	retriesScheduled *prometheus.CounterVec
	dlqEnqueued      prometheus.Counter
	dlqSize          prometheus.Gauge

	checkpointWrites   prometheus.Counter
	checkpointDuration prometheus.Histogram
}

// NewMetrics builds a Metrics instance, or returns (nil, nil) when cfg
// disables metrics — the same "disabled means nil, not an error"
// convention the teacher's NewMetrics uses.
func NewMetrics(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.setDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "job", Name: "started_total",
		Help: "Total number of MapReduce jobs started.",
	}, []string{"workflow_id"})

	m.jobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "job", Name: "completed_total",
		Help: "Total number of MapReduce jobs reaching a terminal phase.",
	}, []string{"workflow_id", "outcome"})

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "job", Name: "duration_seconds",
		Help:    "Wall-clock duration of a complete job run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s .. ~4.5h
	}, []string{"workflow_id"})

	m.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "phase", Name: "duration_seconds",
		Help:    "Duration of one phase transition.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
	}, []string{"phase"})

	m.agentDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "agent", Name: "dispatched_total",
		Help: "Total number of agent attempts dispatched by the pool.",
	}, []string{"attempt"})

	m.agentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "agent", Name: "duration_seconds",
		Help:    "Agent attempt duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 15),
	}, []string{"outcome"})

	m.agentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "agent", Name: "outcomes_total",
		Help: "Terminal outcome counts for agent attempts.",
	}, []string{"outcome"})

	m.agentsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "agent", Name: "active",
		Help: "Number of agent attempts currently holding a pool slot.",
	})

	m.retriesScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "pool", Name: "retries_scheduled_total",
		Help: "Total number of retry attempts scheduled after a failure.",
	}, []string{"reason"})

	m.dlqEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "dlq", Name: "enqueued_total",
		Help: "Total number of work items dead-lettered.",
	})

	m.dlqSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "dlq", Name: "size",
		Help: "Current number of items in the dead-letter queue.",
	})

	m.checkpointWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "checkpoint", Name: "writes_total",
		Help: "Total number of checkpoint saves.",
	})

	m.checkpointDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "checkpoint", Name: "write_duration_seconds",
		Help:    "Checkpoint save latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.registry.MustRegister(
		m.jobsStarted, m.jobsCompleted, m.jobDuration,
		m.phaseDuration,
		m.agentDispatched, m.agentDuration, m.agentOutcomes, m.agentsActive,
		m.retriesScheduled, m.dlqEnqueued, m.dlqSize,
		m.checkpointWrites, m.checkpointDuration,
	)
	return m, nil
}

func (m *Metrics) RecordJobStarted(workflowID string) {
	if m == nil {
		return
	}
	m.jobsStarted.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) RecordJobCompleted(workflowID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsCompleted.WithLabelValues(workflowID, outcome).Inc()
	m.jobDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

func (m *Metrics) RecordPhaseDuration(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (m *Metrics) RecordAgentDispatch(attempt int) {
	if m == nil {
		return
	}
	m.agentDispatched.WithLabelValues(attemptLabel(attempt)).Inc()
	m.agentsActive.Inc()
}

func (m *Metrics) RecordAgentComplete(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.agentsActive.Dec()
	m.agentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.agentOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRetryScheduled(reason string) {
	if m == nil {
		return
	}
	m.retriesScheduled.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordDeadLettered() {
	if m == nil {
		return
	}
	m.dlqEnqueued.Inc()
	m.dlqSize.Inc()
}

func (m *Metrics) SetDLQSize(n int) {
	if m == nil {
		return
	}
	m.dlqSize.Set(float64(n))
}

func (m *Metrics) RecordCheckpointWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkpointWrites.Inc()
	m.checkpointDuration.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape endpoint handler. A nil
// receiver serves 503, mirroring a metrics-disabled deployment.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests that want to
// assert on specific series.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func attemptLabel(attempt int) string {
	switch {
	case attempt <= 0:
		return "0"
	case attempt == 1:
		return "1"
	case attempt == 2:
		return "2"
	default:
		return "3+"
	}
}
