// Package health provides health check capabilities for the application.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cmatc13/merchantpay/pkg/logging"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusUp indicates the component is healthy.
	StatusUp Status = "UP"
	// StatusDown indicates the component is unhealthy.
	StatusDown Status = "DOWN"
	// StatusUnknown indicates the component's health is unknown.
	StatusUnknown Status = "UNKNOWN"
)

// Check represents a health check for a component.
type Check struct {
	// Name is the name of the component being checked.
	Name string
	// Status is the health status of the component.
	Status Status
	// Message is an optional message providing more details about the health status.
	Message string
	// LastChecked is the time when the component was last checked.
	LastChecked time.Time
	// Error is an optional error that occurred during the health check.
	Error error
}

// MarshalJSON implements the json.Marshaler interface.
func (c Check) MarshalJSON() ([]byte, error) {
	var errorStr string
	if c.Error != nil {
		errorStr = c.Error.Error()
	}

	return json.Marshal(struct {
		Name        string    `json:"name"`
		Status      Status    `json:"status"`
		Message     string    `json:"message,omitempty"`
		LastChecked time.Time `json:"last_checked"`
		Error       string    `json:"error,omitempty"`
	}{
		Name:        c.Name,
		Status:      c.Status,
		Message:     c.Message,
		LastChecked: c.LastChecked,
		Error:       errorStr,
	})
}

// Checker defines a function that performs a health check.
type Checker func(ctx context.Context) Check

// Registry manages health checks for the application.
type Registry struct {
	checks  map[string]Checker
	timeout time.Duration
	mutex   sync.RWMutex
	logger  *logging.Logger
}

// NewRegistry creates a new health check registry. Each check gets at most
// five seconds.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		checks:  make(map[string]Checker),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Register adds a health check to the registry.
func (r *Registry) Register(name string, checker Checker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.checks[name] = checker
	r.logger.Info("Registered health check", "name", name)
}

// RunChecks runs all registered health checks concurrently.
func (r *Registry) RunChecks(ctx context.Context) map[string]Check {
	r.mutex.RLock()
	checks := make(map[string]Checker, len(r.checks))
	for name, checker := range r.checks {
		checks[name] = checker
	}
	r.mutex.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
	)
	for name, checker := range checks {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			r.logger.Debug("Running health check", "name", name)
			check := checker(checkCtx)

			mu.Lock()
			results[name] = check
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	return results
}

// Overall folds individual checks into one status: any DOWN wins, then UNKNOWN.
func Overall(checks map[string]Check) Status {
	status := StatusUp
	for _, check := range checks {
		if check.Status == StatusDown {
			return StatusDown
		}
		if check.Status == StatusUnknown {
			status = StatusUnknown
		}
	}
	return status
}

func probe(name, subject string, checkFn func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Check {
		check := Check{
			Name:        name,
			Status:      StatusUnknown,
			LastChecked: time.Now(),
		}

		if err := checkFn(ctx); err != nil {
			check.Status = StatusDown
			check.Error = err
			check.Message = fmt.Sprintf("%s is unhealthy: %v", subject, err)
		} else {
			check.Status = StatusUp
			check.Message = fmt.Sprintf("%s is healthy", subject)
		}

		return check
	}
}

// ServiceChecker creates a health check for a service.
func ServiceChecker(serviceName string, checkFn func(ctx context.Context) error) Checker {
	return probe(serviceName, "Service "+serviceName, checkFn)
}

// RedisChecker creates a health check for Redis.
func RedisChecker(redisAddr string, pingFn func(ctx context.Context) error) Checker {
	return probe("redis", "Redis at "+redisAddr, pingFn)
}

// KafkaChecker creates a health check for Kafka.
func KafkaChecker(kafkaBrokers string, checkFn func(ctx context.Context) error) Checker {
	return probe("kafka", "Kafka at "+kafkaBrokers, checkFn)
}

// DependencyChecker creates a health check for a dependency.
func DependencyChecker(dependencyName string, checkFn func(ctx context.Context) error) Checker {
	return probe(dependencyName, "Dependency "+dependencyName, checkFn)
}
