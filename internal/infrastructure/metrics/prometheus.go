// Package metrics exposes workflow and HTTP metrics through Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/field-service/internal/application/port"
)

const namespace = "field_service"

// Collectors implements port.WorkflowMetrics and records HTTP request metrics
type Collectors struct {
	registry *prometheus.Registry

	sessionsOpen      prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	fiscalEmissions   *prometheus.CounterVec
	finalizations     *prometheus.CounterVec
	collaboratorTimes *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the collectors on a private registry that also carries the Go runtime
// and process collectors
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Completion sessions currently open.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Completion sessions opened.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Completion sessions closed, by reason.",
		}, []string{"reason"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_uploads_total",
			Help:      "Attachment uploads, by outcome.",
		}, []string{"outcome"}),
		fiscalEmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fiscal_emissions_total",
			Help:      "Fiscal document emission attempts, by outcome.",
		}, []string{"outcome"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Completion finalization attempts, by outcome.",
		}, []string{"outcome"}),
		collaboratorTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_duration_seconds",
			Help:      "Latency of calls to external collaborators.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"collaborator", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessionsOpen,
		c.sessionsOpened,
		c.sessionsClosed,
		c.uploads,
		c.fiscalEmissions,
		c.finalizations,
		c.collaboratorTimes,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// SessionOpened implements port.WorkflowMetrics
func (c *Collectors) SessionOpened() {
	c.sessionsOpened.Inc()
	c.sessionsOpen.Inc()
}

// SessionClosed implements port.WorkflowMetrics
func (c *Collectors) SessionClosed(reason string) {
	c.sessionsClosed.WithLabelValues(reason).Inc()
	c.sessionsOpen.Dec()
}

// AttachmentUploaded implements port.WorkflowMetrics
func (c *Collectors) AttachmentUploaded(ok bool) {
	c.uploads.WithLabelValues(outcome(ok)).Inc()
}

// FiscalEmission implements port.WorkflowMetrics
func (c *Collectors) FiscalEmission(result string, seconds float64) {
	c.fiscalEmissions.WithLabelValues(result).Inc()
	c.collaboratorTimes.WithLabelValues("fiscal_emitter", result).Observe(seconds)
}

// Finalization implements port.WorkflowMetrics
func (c *Collectors) Finalization(result string, seconds float64) {
	c.finalizations.WithLabelValues(result).Inc()
	c.collaboratorTimes.WithLabelValues("completion_sink", result).Observe(seconds)
}

// ObserveHTTP records one served request; route is the matched pattern, not the raw path
func (c *Collectors) ObserveHTTP(method, route, status string, seconds float64) {
	c.httpRequests.WithLabelValues(method, route, status).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

var _ port.WorkflowMetrics = (*Collectors)(nil)
