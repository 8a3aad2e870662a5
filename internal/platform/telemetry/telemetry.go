// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// questionnaire submission pipeline.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TelemetryConfig holds the provider settings.
type TelemetryConfig struct {
	Namespace string
	// MetricsEnabled is nil for the default (true).
	MetricsEnabled *bool
}

func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "intake"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

var defaultDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// TelemetryProvider owns a private Prometheus registry and its collectors.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	activeRequests   prometheus.Gauge
	submissions      *prometheus.CounterVec
	submitDuration   *prometheus.HistogramVec
	validationErrors *prometheus.CounterVec
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	ns := cfg.Namespace

	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_server_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "route", "status_code"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_server_active_requests",
			Help:      "Number of active HTTP requests.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "questionnaire_submissions_total",
			Help:      "Questionnaire submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "questionnaire_submission_duration_seconds",
			Help:      "Time spent processing a questionnaire submission.",
			Buckets:   defaultDurationBuckets,
		}, []string{"outcome"}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "questionnaire_validation_errors_total",
			Help:      "Rejected answers by validation error type.",
		}, []string{"type"}),
	}

	tp.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		tp.requestDuration,
		tp.activeRequests,
		tp.submissions,
		tp.submitDuration,
		tp.validationErrors,
	)
	return tp
}

// Registry returns the registry backing the provider.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObserveSubmission records one submission attempt.
func (tp *TelemetryProvider) ObserveSubmission(outcome string, seconds float64) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.submissions.WithLabelValues(outcome).Inc()
	tp.submitDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObserveValidationErrors adds count rejected answers of errType.
func (tp *TelemetryProvider) ObserveValidationErrors(errType string, count int) {
	if !tp.cfg.metricsOn() {
		return
	}
	tp.validationErrors.WithLabelValues(errType).Add(float64(count))
}

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.activeRequests.Inc()
			defer tp.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			// Use the route pattern so ids do not explode cardinality.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			tp.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}
