package driverbot

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"driver_bot/internal/metrics"
)

func newRouter(webhook http.Handler, collector *metrics.Collector, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestLog(logger))
	// Метрики снаружи Recoverer, чтобы паника считалась ошибкой 5xx.
	r.Use(withMetrics(collector))
	r.Use(middleware.Recoverer)

	r.Handle("/telegram/webhook", webhook)
	r.Handle("/metrics", metrics.NewHandler(collector))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func withRequestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			w.Header().Set(middleware.RequestIDHeader, requestID)
			logger.Debug("request received", slog.String("path", r.URL.Path), slog.String("method", r.Method), slog.String("request_id", requestID))
			next.ServeHTTP(w, r)
		})
	}
}

func withMetrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if collector == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			collector.IncRequests()
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusInternalServerError {
				collector.IncErrors()
			}
		})
	}
}
