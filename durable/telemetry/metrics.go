package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible measurements for an Executor's
// invocations, the durable-execution analogue of the teacher's
// PrometheusMetrics: the engine doesn't know Prometheus exists, only
// "record a suspend", "record a flush", "record a retry".
//
// Metrics exposed (namespaced with "durable_"):
//
//  1. invocations_total (counter): invocations grouped by outcome. Labels:
//     outcome (the Executor passes SUCCEEDED, FAILED or PENDING).
//  2. checkpoint_flush_seconds (histogram): latency of one flush round
//     trip through the CheckpointClient.
//  3. step_retries_total (counter): retry attempts, labeled by step name.
//  4. suspensions_total (counter): invocations that ended PENDING.
type Metrics struct {
	invocations  *prometheus.CounterVec
	flushLatency prometheus.Histogram
	stepRetries  *prometheus.CounterVec
	suspensions  prometheus.Counter
}

// NewMetrics registers durable's metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "durable_invocations_total",
			Help: "Executor invocations, labeled by outcome.",
		}, []string{"outcome"}),
		flushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "durable_checkpoint_flush_seconds",
			Help:    "Latency of one checkpoint coordinator flush.",
			Buckets: prometheus.DefBuckets,
		}),
		stepRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "durable_step_retries_total",
			Help: "Retry attempts, labeled by step name.",
		}, []string{"step"}),
		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Name: "durable_suspensions_total",
			Help: "Invocations that ended PENDING for lack of forward progress.",
		}),
	}
}

// RecordInvocation records the outcome of one Execute call.
func (m *Metrics) RecordInvocation(outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(outcome).Inc()
}

// RecordFlush records the wall-clock duration of one checkpoint flush.
func (m *Metrics) RecordFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.flushLatency.Observe(d.Seconds())
}

// RecordStepRetry records one retry attempt for the named step.
func (m *Metrics) RecordStepRetry(step string) {
	if m == nil {
		return
	}
	m.stepRetries.WithLabelValues(step).Inc()
}

// RecordSuspension records an invocation that ended PENDING.
func (m *Metrics) RecordSuspension() {
	if m == nil {
		return
	}
	m.suspensions.Inc()
}
