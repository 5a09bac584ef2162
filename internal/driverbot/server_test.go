package driverbot

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"driver_bot/internal/metrics"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := newRouter(webhook, collector, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{}")))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected webhook status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "driver_bot_requests_total 3") {
		t.Fatalf("expected three counted requests, got:\n%s", rec.Body.String())
	}
}

func TestRouterCountsServerErrors(t *testing.T) {
	collector := metrics.NewCollector()
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	router := newRouter(webhook, collector, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{}")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected recovered panic as 500, got %d", rec.Code)
	}
	if got := collector.Snapshot().Errors; got != 1 {
		t.Fatalf("expected one error, got %d", got)
	}
}
