// internal/api/security_middleware.go
package api

import (
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
)

// SecurityMiddleware wraps security-related middleware functions
type SecurityMiddleware struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewSecurityMiddleware creates a new security middleware
func NewSecurityMiddleware(logger *logging.Logger, metricsCollector *metrics.Metrics) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// SecureHeaders sets response headers for a JSON API
func (sm *SecurityMiddleware) SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ValidateContentType ensures the request has the correct Content-Type
func (sm *SecurityMiddleware) ValidateContentType(contentType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ct := r.Header.Get("Content-Type")
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != contentType {
				sm.logger.WithContext(r.Context()).Warn("Invalid Content-Type",
					"expected", contentType,
					"received", ct,
					"path", r.URL.Path,
				)
				renderAPIError(sm.logger, sm.metrics, w,
					errors.NewAPIError(errors.APIErrUnsupportedMedia, "Content-Type must be "+contentType, err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps the request body at maxBytes.
func (sm *SecurityMiddleware) LimitBody(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter limits requests per client IP within window.
func (sm *SecurityMiddleware) RateLimiter(limit int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			sm.logger.WithContext(r.Context()).Warn("Rate limit exceeded",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			renderAPIError(sm.logger, sm.metrics, w,
				errors.NewAPIError(errors.APIErrRateLimitExceeded, "Rate limit exceeded", nil))
		}),
	)
}
