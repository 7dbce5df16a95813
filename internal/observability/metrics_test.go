package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsExposeBillingCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveInvoice("success")
	metrics.ObserveInvoice("success")
	metrics.ObserveInvoice("conflict")
	metrics.ObserveMissingPrice("armazenagem_adicional")

	body := scrape(t, metrics)
	for _, want := range []string{
		`fulfillment_invoices_computed_total{result="success"} 2`,
		`fulfillment_invoices_computed_total{result="conflict"} 1`,
		`fulfillment_missing_prices_total{type="armazenagem_adicional"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveInvoice("failure")
	metrics.ObserveMissingPrice("armazenagem_base")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/billing/invoices/{uid}")

	req := httptest.NewRequest(http.MethodGet, "/billing/invoices/u1", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "fulfillment_http_requests_total{code=\"418\",route=\"/billing/invoices/{uid}\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "fulfillment_http_request_duration_seconds_bucket{route=\"/billing/invoices/{uid}\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
