// internal/api/middleware.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
)

// routePattern returns the matched chi pattern so path labels stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(metricsCollector *metrics.Metrics, serviceName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			metricsCollector.RequestInFlight.WithLabelValues(serviceName).Inc()
			defer metricsCollector.RequestInFlight.WithLabelValues(serviceName).Dec()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metricsCollector.RecordRequest(serviceName, r.Method, routePattern(r), status, time.Since(start))
		})
	}
}

// LoggingMiddleware creates middleware that logs requests using structured logging
func LoggingMiddleware(logger *logging.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.WithContext(r.Context())

			reqLogger.Debug("Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}

			switch {
			case status >= 500:
				reqLogger.Error("Request completed with server error", args...)
			case status >= 400:
				reqLogger.Warn("Request completed with client error", args...)
			default:
				reqLogger.Info("Request completed successfully", args...)
			}
		})
	}
}

// RecovererWithMetrics is a middleware that recovers from panics, logs the panic,
// and records it as a metric
func RecovererWithMetrics(logger *logging.Logger, metricsCollector *metrics.Metrics, serviceName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.WithContext(r.Context()).Error("Panic recovered",
						"error", rvr,
						"method", r.Method,
						"path", r.URL.Path,
					)
					metricsCollector.RecordError(serviceName, "panic", "PANIC")

					renderAPIError(logger, metricsCollector, w, errors.WrapWithOperation(
						errors.NewAPIError(errors.APIErrInternalServer, "An internal server error occurred", nil),
						errors.OpHandleRequest))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// renderAPIError writes err as the standard failure envelope.
func renderAPIError(logger *logging.Logger, metricsCollector *metrics.Metrics, w http.ResponseWriter, err error) {
	status := errors.HTTPStatusFromError(err)
	code := errors.CodeOf(err)
	if code == "" {
		code = string(errors.KindOf(err))
	}
	if metricsCollector != nil {
		metricsCollector.RecordError("api", "http", code)
	}
	renderJSON(logger, w, Response{
		Success: false,
		Error:   errors.PublicMessage(err, http.StatusText(status)),
	}, status)
}
