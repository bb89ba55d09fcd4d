// Package metrics exposes Prometheus instruments for the conversion
// pipeline and the listening test.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	guesses       *prometheus.CounterVec
	pValue        prometheus.Gauge
}

// New creates and registers all instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "abx",
			Name:      "pipeline_stage_seconds",
			Help:      "Duration of each transform pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abx",
			Name:      "pipeline_stage_errors_total",
			Help:      "Failed pipeline stages.",
		}, []string{"stage"}),
		guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abx",
			Name:      "guesses_total",
			Help:      "Evaluated listener guesses by outcome.",
		}, []string{"outcome"}),
		pValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "abx",
			Name:      "p_value",
			Help:      "One-sided binomial p-value of the running session.",
		}),
	}
	m.pValue.Set(1)
	m.registry.MustRegister(m.stageDuration, m.stageErrors, m.guesses, m.pValue)
	return m
}

// ObserveStage records one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// ObserveGuess records an evaluated guess and the resulting p-value.
func (m *Metrics) ObserveGuess(correct bool, p float64) {
	outcome := "wrong"
	if correct {
		outcome = "correct"
	}
	m.guesses.WithLabelValues(outcome).Inc()
	m.pValue.Set(p)
}

// ResetSession puts the p-value gauge back to 1 for a fresh source.
func (m *Metrics) ResetSession() {
	m.pValue.Set(1)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
