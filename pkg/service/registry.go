// pkg/service/registry.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cmatc13/merchantpay/pkg/logging"
)

// Registry manages all services and their lifecycle
type Registry struct {
	services      map[string]Service
	mutex         sync.RWMutex
	logger        *logging.Logger
	healthTimeout time.Duration
	healthPoll    time.Duration
}

// NewRegistry creates a new service registry
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		services:      make(map[string]Service),
		logger:        logger,
		healthTimeout: 30 * time.Second,
		healthPoll:    100 * time.Millisecond,
	}
}

// Register adds a service to the registry
func (r *Registry) Register(service Service) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	r.services[name] = service
	r.logger.Info("Service registered", "service", name)
	return nil
}

// Get returns a service by name
func (r *Registry) Get(name string) (Service, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}

	return service, nil
}

// StartOrder returns service names with every dependency ahead of its dependents.
func (r *Registry) StartOrder() ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return topologicalSort(buildDependencyGraph(r.services))
}

// StartAll starts all services in dependency order
func (r *Registry) StartAll(ctx context.Context) error {
	order, err := r.StartOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		service, err := r.Get(name)
		if err != nil {
			return err
		}
		r.logger.Info("Starting service", "service", name)

		if err := service.Start(ctx); err != nil {
			r.logger.Error("Failed to start service", "service", name, "error", err)
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}

		if err := r.waitForHealth(ctx, service); err != nil {
			return err
		}
	}

	return nil
}

// StopAll stops all services in reverse dependency order. Every service is
// asked to stop; the first error is returned.
func (r *Registry) StopAll(ctx context.Context) error {
	order, err := r.StartOrder()
	if err != nil {
		return err
	}

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		service, err := r.Get(order[i])
		if err != nil {
			continue
		}
		r.logger.Info("Stopping service", "service", order[i])

		if err := service.Stop(ctx); err != nil {
			r.logger.Error("Error stopping service", "service", order[i], "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to stop service %s: %w", order[i], err)
			}
		}
	}

	return firstErr
}

// HealthCheck performs health checks on all services
func (r *Registry) HealthCheck() map[string]error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	results := make(map[string]error, len(r.services))
	for name, service := range r.services {
		results[name] = service.Health()
	}

	return results
}

// waitForHealth waits for a service to become healthy
func (r *Registry) waitForHealth(ctx context.Context, service Service) error {
	if err := service.Health(); err == nil {
		return nil
	}

	ticker := time.NewTicker(r.healthPoll)
	defer ticker.Stop()

	timeout := time.After(r.healthTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for service %s to become healthy", service.Name())
		case <-ticker.C:
			if err := service.Health(); err == nil {
				return nil
			}
		}
	}
}

func buildDependencyGraph(services map[string]Service) map[string][]string {
	graph := make(map[string][]string, len(services))
	for name, service := range services {
		graph[name] = service.Dependencies()
	}
	return graph
}

// topologicalSort orders the graph depth-first, dependencies first. Names are
// visited alphabetically so the order is stable between runs.
func topologicalSort(graph map[string][]string) ([]string, error) {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	order := make([]string, 0, len(graph))

	var visit func(node string) error
	visit = func(node string) error {
		if inStack[node] {
			return fmt.Errorf("dependency cycle detected involving service %s", node)
		}
		if visited[node] {
			return nil
		}

		inStack[node] = true
		for _, dep := range graph[node] {
			// dependencies outside the registry are external
			if _, exists := graph[dep]; !exists {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		inStack[node] = false
		visited[node] = true
		order = append(order, node)
		return nil
	}

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}
