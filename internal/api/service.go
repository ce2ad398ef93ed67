// internal/api/service.go
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmatc13/merchantpay/pkg/service"
)

// ServiceName is the registry name of the HTTP API.
const ServiceName = "api"

// APIService wraps the API server as a Service
type APIService struct {
	server       *Server
	dependencies []string

	mu         sync.RWMutex
	status     service.Status
	serveErr   error
	addr       string
	uptimeDone chan struct{}
}

// NewAPIService creates a new API service. dependencies names the services
// that must be running before the listener opens.
func NewAPIService(server *Server, dependencies ...string) *APIService {
	return &APIService{
		server:       server,
		dependencies: dependencies,
		status:       service.StatusStopped,
	}
}

// Name returns the service name
func (s *APIService) Name() string {
	return ServiceName
}

// Start binds the listener and serves requests in the background. A port
// that cannot be bound fails Start.
func (s *APIService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.status = service.StatusStarting
	s.serveErr = nil
	s.mu.Unlock()

	ln, err := s.server.Listen()
	if err != nil {
		s.mu.Lock()
		s.serveErr = err
		s.status = service.StatusError
		s.mu.Unlock()
		return fmt.Errorf("listen on port %s: %w", s.server.config.API.Port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.uptimeDone = make(chan struct{})
	s.status = service.StatusRunning
	s.mu.Unlock()

	s.server.metricsCollector.ServiceLastStarted.Set(float64(time.Now().Unix()))
	s.server.metricsCollector.RecordUptime(s.uptimeDone)

	go func() {
		if err := s.server.Serve(ln); err != nil {
			s.mu.Lock()
			s.serveErr = err
			s.status = service.StatusError
			s.mu.Unlock()
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *APIService) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop gracefully shuts down the service
func (s *APIService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.status = service.StatusStopping
	if s.uptimeDone != nil {
		close(s.uptimeDone)
		s.uptimeDone = nil
	}
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	s.status = service.StatusStopped
	s.mu.Unlock()
	return err
}

// Status returns the current service status
func (s *APIService) Status() service.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Health performs a health check
func (s *APIService) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.serveErr != nil {
		return fmt.Errorf("listener failed: %w", s.serveErr)
	}
	if s.status != service.StatusRunning {
		return fmt.Errorf("service not running")
	}
	return nil
}

// Dependencies returns a list of services this service depends on
func (s *APIService) Dependencies() []string {
	return s.dependencies
}
