package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ---------------------------------------------------------------------------
// Config defaults
// ---------------------------------------------------------------------------

func TestTelemetryConfig_Defaults(t *testing.T) {
	cfg := TelemetryConfig{}
	cfg.applyDefaults()

	if cfg.Namespace != "intake" {
		t.Errorf("expected namespace 'intake', got %q", cfg.Namespace)
	}
	if !cfg.metricsOn() {
		t.Error("expected metrics enabled by default")
	}
}

func TestTelemetryConfig_Disabled(t *testing.T) {
	cfg := TelemetryConfig{MetricsEnabled: BoolPtr(false)}
	if cfg.metricsOn() {
		t.Error("expected metrics disabled")
	}
}

// ---------------------------------------------------------------------------
// Submission metrics
// ---------------------------------------------------------------------------

func TestObserveSubmission_CountsByOutcome(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	tp.ObserveSubmission("accepted", 0.01)
	tp.ObserveSubmission("accepted", 0.02)
	tp.ObserveSubmission("rejected", 0.01)

	if got := testutil.ToFloat64(tp.submissions.WithLabelValues("accepted")); got != 2 {
		t.Errorf("expected 2 accepted submissions, got %v", got)
	}
	if got := testutil.ToFloat64(tp.submissions.WithLabelValues("rejected")); got != 1 {
		t.Errorf("expected 1 rejected submission, got %v", got)
	}
}

func TestObserveValidationErrors_AddsCount(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	tp.ObserveValidationErrors("type_error", 3)
	tp.ObserveValidationErrors("type_error", 1)

	if got := testutil.ToFloat64(tp.validationErrors.WithLabelValues("type_error")); got != 4 {
		t.Errorf("expected 4 type errors, got %v", got)
	}
}

func TestNoop_WhenDisabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{MetricsEnabled: BoolPtr(false)})

	tp.ObserveSubmission("accepted", 0.01)
	tp.ObserveValidationErrors("values_missing", 2)

	if got := testutil.CollectAndCount(tp.submissions); got != 0 {
		t.Errorf("expected no submission series when disabled, got %d", got)
	}
	if got := testutil.CollectAndCount(tp.validationErrors); got != 0 {
		t.Errorf("expected no validation series when disabled, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/questionnaires/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/questionnaires/"+id, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	if got := testutil.CollectAndCount(tp.requestDuration); got != 1 {
		t.Fatalf("expected a single series for the route pattern, got %d", got)
	}
}

func TestMetricsMiddleware_ActiveRequests(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	var during float64
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/slow", func(c echo.Context) error {
		during = testutil.ToFloat64(tp.activeRequests)
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if during != 1 {
		t.Fatalf("expected active_requests=1 during handling, got %v", during)
	}
	if after := testutil.ToFloat64(tp.activeRequests); after != 0 {
		t.Fatalf("expected active_requests=0 after request, got %v", after)
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := tp.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "intake_http_server_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status_code" && lp.GetValue() == "404" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected a series with status_code=404")
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

func TestPrometheusHandler_ValidFormat(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/questionnaires", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", tp.PrometheusHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/questionnaires", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}
	tp.ObserveSubmission("accepted", 0.05)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, m := range []string{
		"intake_http_server_request_duration_seconds",
		"intake_http_server_active_requests",
		"intake_questionnaire_submissions_total",
		"intake_questionnaire_submission_duration_seconds",
	} {
		if !strings.Contains(body, m) {
			t.Errorf("expected metrics output to contain %q", m)
		}
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("expected Prometheus HELP and TYPE comments in output")
	}
}
