package flow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for workflow execution, namespaced
// with "agentflow_":
//
//   - node_latency_ms (histogram): node execution duration, labels
//     node_type, status (success/error). Buckets 1ms–10s.
//   - node_executions_total (counter): node executions, labels node_type,
//     status.
//   - model_invocations_total (counter): model calls, labels model, status.
//   - model_fallbacks_total (counter): demotions, labels from, to.
//   - completion_signals_total (counter): parsed signals, label signal.
//   - inflight_runs (gauge): concurrently executing workflow runs.
//
// Expose via promhttp on the registry passed to NewMetrics. Thread-safe.
type Metrics struct {
	nodeLatency    *prometheus.HistogramVec
	nodeExecutions *prometheus.CounterVec
	modelInvokes   *prometheus.CounterVec
	modelFallbacks *prometheus.CounterVec
	signals        *prometheus.CounterVec
	inflightRuns   prometheus.Gauge

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers all workflow metrics with the given
// registry. Pass prometheus.DefaultRegisterer for the global registry, or a
// dedicated prometheus.NewRegistry() for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"node_type", "status"})

	m.nodeExecutions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "node_executions_total",
		Help:      "Cumulative node executions by type and outcome",
	}, []string{"node_type", "status"})

	m.modelInvokes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "model_invocations_total",
		Help:      "Cumulative model invocations by model and outcome",
	}, []string{"model", "status"})

	m.modelFallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "model_fallbacks_total",
		Help:      "Model demotions performed by the resilience layer",
	}, []string{"from", "to"})

	m.signals = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "completion_signals_total",
		Help:      "Structured completion signals parsed from model output",
	}, []string{"signal"})

	m.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentflow",
		Name:      "inflight_runs",
		Help:      "Workflow runs currently executing",
	})

	return m
}

// RecordNodeExecution records one node execution outcome and its latency.
func (m *Metrics) RecordNodeExecution(nodeType string, latency time.Duration, status string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.nodeLatency.WithLabelValues(nodeType, status).Observe(float64(latency.Milliseconds()))
	m.nodeExecutions.WithLabelValues(nodeType, status).Inc()
}

// RecordModelInvocation records one model call outcome.
func (m *Metrics) RecordModelInvocation(modelName, status string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.modelInvokes.WithLabelValues(modelName, status).Inc()
}

// RecordModelFallback records a demotion from one model to another.
func (m *Metrics) RecordModelFallback(from, to string) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.modelFallbacks.WithLabelValues(from, to).Inc()
}

// RecordSignal records a parsed completion signal.
func (m *Metrics) RecordSignal(sig Signal) {
	if m == nil || !m.isEnabled() {
		return
	}
	m.signals.WithLabelValues(string(sig)).Inc()
}

// RunStarted increments the inflight run gauge.
func (m *Metrics) RunStarted() {
	if m == nil || !m.isEnabled() {
		return
	}
	m.inflightRuns.Inc()
}

// RunFinished decrements the inflight run gauge.
func (m *Metrics) RunFinished() {
	if m == nil || !m.isEnabled() {
		return
	}
	m.inflightRuns.Dec()
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
