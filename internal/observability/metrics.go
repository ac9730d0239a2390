// Package observability provides Prometheus metrics for the checkpoint pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry, so tests can build as many as they like.
// Methods are safe on a nil *Metrics and then do nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Checkpoint metrics
	CheckpointRuns     *prometheus.CounterVec
	CheckpointDuration *prometheus.HistogramVec
	QualifiedSymbols   *prometheus.GaugeVec
	LastSuccessfulRun  *prometheus.GaugeVec

	// Provider metrics
	QuoteFetches *prometheus.CounterVec

	// Storage metrics
	PersistFailures prometheus.Counter

	// Universe metrics
	UniverseSize prometheus.Gauge

	// Notification metrics
	Notifications *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gapwatch"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CheckpointRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "runs_total",
			Help:      "Checkpoint runs by label and status",
		}, []string{"label", "status"}),
		CheckpointDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "duration_seconds",
			Help:      "Checkpoint wall-clock duration",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"label"}),
		QualifiedSymbols: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "qualified_symbols",
			Help:      "Symbols qualified at the last run of each checkpoint",
		}, []string{"label"}),
		LastSuccessfulRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of each checkpoint",
		}, []string{"label"}),

		QuoteFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "quote_fetches_total",
			Help:      "Quote fetches by result (ok, failed)",
		}, []string{"result"}),

		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "persist_failures_total",
			Help:      "Dataset persists that failed after all retries",
		}),

		UniverseSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "universe",
			Name:      "symbols",
			Help:      "Symbols in the current day's universe",
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notifications by kind and result",
		}, []string{"kind", "result"}),
	}
}

// Handler serves this instance's registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry (tests)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCheckpoint records one finished checkpoint run
func (m *Metrics) ObserveCheckpoint(label string, err error, qualified int, d time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	m.CheckpointRuns.WithLabelValues(label, status).Inc()
	m.CheckpointDuration.WithLabelValues(label).Observe(d.Seconds())
	if err == nil {
		m.QualifiedSymbols.WithLabelValues(label).Set(float64(qualified))
		m.LastSuccessfulRun.WithLabelValues(label).SetToCurrentTime()
	}
}

// ObserveFetches records a checkpoint's fetch outcome counts
func (m *Metrics) ObserveFetches(ok, failed int) {
	if m == nil {
		return
	}
	m.QuoteFetches.WithLabelValues("ok").Add(float64(ok))
	m.QuoteFetches.WithLabelValues("failed").Add(float64(failed))
}

// ObservePersistFailure counts a persist that exhausted its retries
func (m *Metrics) ObservePersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// SetUniverseSize records the day's universe size
func (m *Metrics) SetUniverseSize(n int) {
	if m == nil {
		return
	}
	m.UniverseSize.Set(float64(n))
}

// ObserveNotification records one notification attempt
func (m *Metrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}
