// Package metrics provides Prometheus metrics for deepchat.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments. All record methods are nil-safe
// so components can hold a nil *Metrics when metrics are disabled.
type Metrics struct {
	// Engine operation metrics
	OperationsTotal    *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec

	// Streaming metrics
	StreamChunksTotal   prometheus.Counter
	StreamFailuresTotal prometheus.Counter

	// Store metrics
	FlushesTotal        *prometheus.CounterVec
	ConversationsTotal  prometheus.Gauge
	SweepDeletionsTotal prometheus.Counter
}

// New creates and registers all deepchat metrics on the default registerer.
func New() *Metrics {
	m := &Metrics{}

	m.OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepchat_operations_total",
			Help: "Total number of session engine operations",
		},
		[]string{"operation", "status"},
	)

	m.CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepchat_completion_duration_seconds",
			Help:    "Duration of remote completion calls in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	m.StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepchat_stream_chunks_total",
			Help: "Total number of streaming fragments relayed",
		},
	)

	m.StreamFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepchat_stream_failures_total",
			Help: "Total number of streams terminated by an upstream error",
		},
	)

	m.FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepchat_store_flushes_total",
			Help: "Total number of durability flushes",
		},
		[]string{"status"},
	)

	m.ConversationsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepchat_conversations_total",
			Help: "Number of conversations currently held by the store",
		},
	)

	m.SweepDeletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepchat_sweep_deletions_total",
			Help: "Total number of conversations removed by the retention sweep",
		},
	)

	return m
}

// RecordOperation records one engine operation with its outcome.
func (m *Metrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCompletion records the duration of a remote completion call.
func (m *Metrics) RecordCompletion(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CompletionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStreamChunk counts one relayed fragment.
func (m *Metrics) RecordStreamChunk() {
	if m == nil {
		return
	}
	m.StreamChunksTotal.Inc()
}

// RecordStreamFailure counts one stream terminated by an upstream error.
func (m *Metrics) RecordStreamFailure() {
	if m == nil {
		return
	}
	m.StreamFailuresTotal.Inc()
}

// RecordFlush records a durability flush outcome.
func (m *Metrics) RecordFlush(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.FlushesTotal.WithLabelValues(status).Inc()
}

// SetConversations updates the conversation count gauge.
func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.ConversationsTotal.Set(float64(n))
}

// RecordSweepDeletions counts conversations removed by a retention sweep.
func (m *Metrics) RecordSweepDeletions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepDeletionsTotal.Add(float64(n))
}
