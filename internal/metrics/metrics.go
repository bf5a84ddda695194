// Package metrics exposes Prometheus instrumentation for pipeline runs,
// alerting and sentiment labeling.
package metrics

import (
	"net/http"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat outcomes of one pipeline run.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics owns a private registry. All methods are safe on a nil receiver so
// callers that do not export metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	ChatsProcessed     *prometheus.CounterVec
	SnapshotsPersisted prometheus.Counter
	ResponseLatency    prometheus.Histogram
	ChatsNeedAttention prometheus.Gauge
	AlertsActive       *prometheus.GaugeVec
	SentimentLabeled   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkpi_pipeline_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"kind", "status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatkpi_pipeline_run_duration_seconds",
				Help:    "Duration of pipeline runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"kind"},
		),

		ChatsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkpi_chats_processed_total",
				Help: "Chats handled by scheduled runs, by outcome",
			},
			[]string{"result"},
		),

		SnapshotsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatkpi_snapshots_persisted_total",
				Help: "Total number of KPI snapshots upserted",
			},
		),

		ResponseLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatkpi_response_latency_seconds",
				Help:    "Observed staff response latencies",
				Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
			},
		),

		ChatsNeedAttention: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatkpi_chats_needing_attention",
				Help: "Chats flagged for attention by the last scheduled run",
			},
		),

		AlertsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatkpi_alerts_active",
				Help: "Slow-response alerts from the last alert scan, by severity",
			},
			[]string{"severity"},
		),

		SentimentLabeled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkpi_sentiment_labeled_total",
				Help: "Messages processed by the sentiment labeler, by outcome",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ChatsProcessed,
		m.SnapshotsPersisted,
		m.ResponseLatency,
		m.ChatsNeedAttention,
		m.AlertsActive,
		m.SentimentLabeled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(kind string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := ResultOK
	if failed {
		status = ResultFailed
	}
	m.RunsTotal.WithLabelValues(kind, status).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ChatResult counts one chat outcome.
func (m *Metrics) ChatResult(result string) {
	if m == nil {
		return
	}
	m.ChatsProcessed.WithLabelValues(result).Inc()
}

// SnapshotPersisted counts one upserted snapshot and its latencies.
func (m *Metrics) SnapshotPersisted(latencies []int) {
	if m == nil {
		return
	}
	m.SnapshotsPersisted.Inc()
	for _, l := range latencies {
		m.ResponseLatency.Observe(float64(l))
	}
}

// SetChatsNeedingAttention sets the attention gauge.
func (m *Metrics) SetChatsNeedingAttention(n int) {
	if m == nil {
		return
	}
	m.ChatsNeedAttention.Set(float64(n))
}

// SetAlerts replaces the per-severity alert gauges.
func (m *Metrics) SetAlerts(counts map[kpi.Severity]int) {
	if m == nil {
		return
	}
	for _, sev := range []kpi.Severity{kpi.SeverityLow, kpi.SeverityMedium, kpi.SeverityHigh, kpi.SeverityCritical} {
		m.AlertsActive.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
}

// SentimentResult counts one labeler outcome.
func (m *Metrics) SentimentResult(result string) {
	if m == nil {
		return
	}
	m.SentimentLabeled.WithLabelValues(result).Inc()
}
