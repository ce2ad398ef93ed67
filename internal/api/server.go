// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"

	"github.com/cmatc13/merchantpay/internal/payment"
	"github.com/cmatc13/merchantpay/internal/store"
	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/health"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
)

// PaymentSubmitter runs one payment submission.
type PaymentSubmitter interface {
	Submit(ctx context.Context, req payment.SubmitRequest) payment.Result
}

// ReceiptReader looks up stored receipts.
type ReceiptReader interface {
	Get(ctx context.Context, txHash string) (*store.Receipt, error)
}

// Server represents the API server
type Server struct {
	config           *config.Config
	router           *chi.Mux
	payments         PaymentSubmitter
	receipts         ReceiptReader
	tokenAuth        *jwtauth.JWTAuth
	server           *http.Server
	logger           *logging.Logger
	metricsCollector *metrics.Metrics
	healthRegistry   *health.Registry
}

// NewServer creates a new API server. receipts may be nil when Redis is
// disabled.
func NewServer(
	cfg *config.Config,
	payments PaymentSubmitter,
	receipts ReceiptReader,
	logger *logging.Logger,
	metricsCollector *metrics.Metrics,
	healthRegistry *health.Registry,
) *Server {
	r := chi.NewRouter()

	var tokenAuth *jwtauth.JWTAuth
	if cfg.Auth.JWTSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(cfg.Auth.JWTSecret), nil)
	}

	s := &Server{
		config:           cfg,
		router:           r,
		payments:         payments,
		receipts:         receipts,
		tokenAuth:        tokenAuth,
		logger:           logger.WithField("component", "api"),
		metricsCollector: metricsCollector,
		healthRegistry:   healthRegistry,
		server: &http.Server{
			Addr:              ":" + cfg.API.Port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	securityMiddleware := NewSecurityMiddleware(s.logger, s.metricsCollector)

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(securityMiddleware.SecureHeaders)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(MetricsMiddleware(s.metricsCollector, "api"))
	s.router.Use(RecovererWithMetrics(s.logger, s.metricsCollector, "api"))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	securityMiddleware := NewSecurityMiddleware(s.logger, s.metricsCollector)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.metricsCollector.Handler().ServeHTTP)

	s.router.Route("/api/v1/payments", func(r chi.Router) {
		r.With(
			securityMiddleware.RateLimiter(s.config.API.RateLimit, s.config.API.RateWindow),
			securityMiddleware.ValidateContentType("application/json"),
			securityMiddleware.LimitBody(s.config.API.MaxBodyBytes),
		).Post("/submit", s.handleSubmitPayment)

		r.Group(func(r chi.Router) {
			if s.tokenAuth != nil {
				r.Use(jwtauth.Verifier(s.tokenAuth))
				r.Use(jwtauth.Authenticator)
			}
			r.Get("/{txHash}", s.handleGetReceipt)
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderAPIError(s.logger, s.metricsCollector, w, errors.NewAPIError(errors.APIErrNotFound, "Not found", nil))
	})
}

// Listen binds the configured port. Requests are not served until Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.logger.Error("Error binding API port", "port", s.config.API.Port, "error", err)
		return nil, err
	}
	s.logger.Info("Starting API server", "addr", ln.Addr().String())
	return ln, nil
}

// Serve handles requests on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Error serving API requests", "error", err)
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("API server shutdown complete")
	return nil
}

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.healthRegistry.RunChecks(r.Context())
	status := health.Overall(checks)

	httpStatus := http.StatusOK
	if status == health.StatusDown {
		httpStatus = http.StatusServiceUnavailable
	}

	renderJSON(s.logger, w, Response{
		Success: status == health.StatusUp,
		Message: "Service health status: " + string(status),
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"version":   s.config.API.Version,
			"checks":    checks,
			"system": map[string]interface{}{
				"go_version":    runtime.Version(),
				"go_goroutines": runtime.NumGoroutine(),
			},
		},
	}, httpStatus)
}

// handleSubmitPayment co-signs and submits a wallet-signed transaction. The
// body is always {success, txHash} or {success:false, error}.
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErr := errors.NewAPIError(errors.APIErrBadRequest, "Invalid request body", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiErr = errors.NewAPIError(errors.APIErrPayloadTooLarge, "Request body too large", err)
		}
		apiErr = errors.WrapWithOperation(apiErr, errors.OpParseRequestBody)
		s.logger.WithContext(r.Context()).WithError(apiErr).Info("Rejected payment request body")
		renderAPIError(s.logger, s.metricsCollector, w, apiErr)
		return
	}

	result := s.payments.Submit(r.Context(), req)

	status := http.StatusOK
	if !result.Success {
		status = errors.HTTPStatusForKind(result.Kind)
		s.metricsCollector.RecordError("api", string(result.Kind), string(result.Stage))
	}
	renderJSON(s.logger, w, result, status)
}

// handleGetReceipt returns the stored receipt for a transaction hash
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		renderAPIError(s.logger, s.metricsCollector, w,
			errors.NewAPIError(errors.APIErrNotFound, "Receipts are not enabled", nil))
		return
	}

	txHash := chi.URLParam(r, "txHash")
	if len(txHash) < payment.MinTxHashHexLen {
		renderAPIError(s.logger, s.metricsCollector, w,
			errors.NewAPIError(errors.APIErrBadRequest, "Invalid transaction hash", nil))
		return
	}

	receipt, err := s.receipts.Get(r.Context(), txHash)
	if err != nil {
		if !errors.IsStorageError(err, errors.StorageErrNotFound) {
			s.logger.WithContext(r.Context()).WithError(err).Error("Failed to read receipt", "tx_hash", txHash)
		}
		renderAPIError(s.logger, s.metricsCollector, w, errors.WrapWithOperation(err, errors.OpGetReceipt))
		return
	}

	renderJSON(s.logger, w, Response{Success: true, Data: receipt}, http.StatusOK)
}

// renderJSON renders a JSON response
func renderJSON(logger *logging.Logger, w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response", "error", err)
	}
}
