// Package metrics exposes Prometheus collectors for provider calls, retries,
// cache lookups, image fallbacks and workflow steps. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listify"

type Metrics struct {
	gatherer prometheus.Gatherer

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	retryAttempts    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	imageFallbacks   *prometheus.CounterVec
	imageEdits       *prometheus.CounterVec
	workflowSteps    *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers every collector on reg. Registering twice on the same
// registry panics, so build one Metrics per registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Outbound AI provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of outbound AI provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		retryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_failed_attempts_total",
			Help:      "Failed attempts seen by retry executors, by executor and error kind.",
		}, []string{"executor", "kind"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Content cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		imageFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_edit_variant_attempts_total",
			Help:      "Image edit prompt variants attempted, by variant and outcome.",
		}, []string{"variant", "outcome"}),
		imageEdits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_edits_total",
			Help:      "Completed image edit requests by outcome.",
		}, []string{"outcome"}),
		workflowSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow step executions by step and status.",
		}, []string{"step", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) ProviderCall(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) RetryAttempt(executor, kind string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(executor, kind).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ImageVariant(variant string, ok bool) {
	if m == nil {
		return
	}
	m.imageFallbacks.WithLabelValues(variant, outcomeLabel(ok)).Inc()
}

func (m *Metrics) ImageEdit(outcome string) {
	if m == nil {
		return
	}
	m.imageEdits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WorkflowStep(step, status string) {
	if m == nil {
		return
	}
	m.workflowSteps.WithLabelValues(step, status).Inc()
}

func (m *Metrics) HTTPRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
