package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Orca
type Metrics struct {
	// Job counters
	JobsSubmittedTotal *prometheus.CounterVec
	JobsCompletedTotal prometheus.Counter
	JobsFailedTotal    prometheus.Counter
	JobsActive         prometheus.Gauge

	// Email counters
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsSubmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orca_jobs_submitted_total",
				Help: "Total number of background jobs submitted",
			},
			[]string{"priority"},
		),
		JobsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orca_jobs_completed_total",
				Help: "Total number of jobs finished with at least one delivery",
			},
		),
		JobsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orca_jobs_failed_total",
				Help: "Total number of jobs finished without a single delivery",
			},
		),
		JobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orca_jobs_active",
				Help: "Number of jobs currently pending or processing",
			},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orca_emails_sent_total",
				Help: "Total number of emails accepted by a sending server",
			},
			[]string{"server"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orca_emails_failed_total",
				Help: "Total number of emails rejected by a sending server",
			},
			[]string{"server"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orca_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orca_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.JobsSubmittedTotal,
		m.JobsCompletedTotal,
		m.JobsFailedTotal,
		m.JobsActive,
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
