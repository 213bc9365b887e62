package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// Each instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Answers            *prometheus.CounterVec
	AnswerLatency      prometheus.Histogram
	GenerationFailures *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	Sweeps             *prometheus.CounterVec
	SweepDeleted       *prometheus.CounterVec
	StorageBytes       prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers produced, by the stage that resolved them.",
		}, []string{"source"}),
		AnswerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_latency_ms",
			Help:      "End-to-end answer latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		GenerationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Failed generation attempts by attempt number.",
		}, []string{"attempt"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_sweeps_total",
			Help:      "Retention sweeps by trigger and result.",
		}, []string{"trigger", "result"}),
		SweepDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_rows_total",
			Help:      "Rows deleted by retention sweeps, per store.",
		}, []string{"store"}),
		StorageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_bytes",
			Help:      "Last measured on-disk footprint of the database.",
		}),
	}
}

// ObserveAnswer counts an answer and records its latency.
func (m *Metrics) ObserveAnswer(source string, d time.Duration) {
	m.Answers.WithLabelValues(source).Inc()
	m.AnswerLatency.Observe(float64(d.Milliseconds()))
}

// GenerationFailed counts a failed generation attempt (1 or 2).
func (m *Metrics) GenerationFailed(attempt string) {
	m.GenerationFailures.WithLabelValues(attempt).Inc()
}

// Notification implements notify.Recorder.
func (m *Metrics) Notification(kind, outcome string) {
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}

// Sweep counts a retention sweep and the rows it deleted.
func (m *Metrics) Sweep(trigger, result string, deleted map[string]int64) {
	m.Sweeps.WithLabelValues(trigger, result).Inc()
	for store, n := range deleted {
		m.SweepDeleted.WithLabelValues(store).Add(float64(n))
	}
}

// Footprint records the measured storage size.
func (m *Metrics) Footprint(bytes int64) {
	m.StorageBytes.Set(float64(bytes))
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
