package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.Ledger().ImportFinished("applied", 1, 0, 0, 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `ledger_coa_imports_total{result="applied"} 1`) {
		t.Fatalf("expected body to contain ledger_coa_imports_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestLedgerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.ImportFinished("applied", 2, 1, 3, 0)
	m.ImportFinished("rejected", 0, 0, 0, 0)
	m.EntryTransition("POSTED")
	m.EntryTransition("POSTED")
	m.ValidationRejected("unbalanced")

	if got := testutil.ToFloat64(m.importRows.WithLabelValues("retire")); got != 3 {
		t.Fatalf("retire rows = %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("POSTED")); got != 2 {
		t.Fatalf("posted transitions = %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("unbalanced")); got != 1 {
		t.Fatalf("unbalanced rejections = %v", got)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ImportFinished("applied", 1, 1, 1, 1)
	nilMetrics.EntryTransition("VOID")
	nilMetrics.ValidationRejected("incomplete")
}
