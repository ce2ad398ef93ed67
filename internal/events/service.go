package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/cmatc13/merchantpay/pkg/service"
)

// ServiceName is the registry name of the event publisher.
const ServiceName = "events"

// PublisherService wraps a KafkaPublisher as a Service
type PublisherService struct {
	publisher *KafkaPublisher

	mu     sync.RWMutex
	status service.Status
}

// NewPublisherService creates a new publisher service
func NewPublisherService(publisher *KafkaPublisher) *PublisherService {
	return &PublisherService{
		publisher: publisher,
		status:    service.StatusStopped,
	}
}

// Name returns the service name
func (s *PublisherService) Name() string {
	return ServiceName
}

// Start marks the publisher as running; the producer connects lazily.
func (s *PublisherService) Start(ctx context.Context) error {
	s.setStatus(service.StatusRunning)
	return nil
}

// Stop flushes and closes the producer
func (s *PublisherService) Stop(ctx context.Context) error {
	s.setStatus(service.StatusStopping)
	s.publisher.Close()
	s.setStatus(service.StatusStopped)
	return nil
}

// Status returns the current service status
func (s *PublisherService) Status() service.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Health performs a health check
func (s *PublisherService) Health() error {
	if s.Status() != service.StatusRunning {
		return fmt.Errorf("service not running")
	}
	return nil
}

// Dependencies returns a list of services this service depends on
func (s *PublisherService) Dependencies() []string {
	return nil
}

func (s *PublisherService) setStatus(status service.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
