// Package metrics provides metrics collection capabilities for the application.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metrics collectors for the application.
type Metrics struct {
	// Registry is the Prometheus registry for all metrics.
	Registry *prometheus.Registry

	// Common metrics
	RequestCount        *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RequestInFlight     *prometheus.GaugeVec
	ErrorCount          *prometheus.CounterVec
	ServiceUptime       prometheus.Gauge
	ServiceLastStarted  prometheus.Gauge
	DependencyUp        *prometheus.GaugeVec
	DependencyLatency   *prometheus.HistogramVec
	DependencyErrorRate *prometheus.CounterVec

	// Payment metrics
	PaymentCount         *prometheus.CounterVec
	PaymentDuration      *prometheus.HistogramVec
	PaymentFailureCount  *prometheus.CounterVec
	WalletWitnessCount   prometheus.Histogram
	SubmissionLatency    prometheus.Histogram
	DuplicateSubmissions prometheus.Counter
}

// Config holds the configuration for metrics.
type Config struct {
	// Namespace is the Prometheus namespace for all metrics.
	Namespace string
	// Subsystem is the Prometheus subsystem for the common metrics.
	Subsystem string
	// ServiceName is the name of the service that is collecting metrics.
	ServiceName string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:   "merchantpay",
		Subsystem:   "",
		ServiceName: "merchantpay",
	}
}

// New creates a new metrics collector with the given configuration.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &Metrics{
		Registry: registry,

		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_total",
				Help:      "Total number of requests received",
			},
			[]string{"service", "method", "path", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),

		RequestInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_in_flight",
				Help:      "Current number of requests being processed",
			},
			[]string{"service"},
		),

		ErrorCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type", "code"},
		),

		ServiceUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   cfg.Subsystem,
				Name:        "service_uptime_seconds",
				Help:        "Service uptime in seconds",
				ConstLabels: prometheus.Labels{"service": cfg.ServiceName},
			},
		),

		ServiceLastStarted: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   cfg.Subsystem,
				Name:        "service_last_started_timestamp",
				Help:        "Timestamp when the service was last started",
				ConstLabels: prometheus.Labels{"service": cfg.ServiceName},
			},
		),

		DependencyUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dependency_up",
				Help:      "Whether the dependency is up (1) or down (0)",
			},
			[]string{"service", "dependency"},
		),

		DependencyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dependency_latency_seconds",
				Help:      "Dependency request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "dependency", "operation"},
		),

		DependencyErrorRate: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dependency_errors_total",
				Help:      "Total number of dependency errors",
			},
			[]string{"service", "dependency", "operation"},
		),

		PaymentCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "submissions_total",
				Help:      "Total number of payment submissions by outcome",
			},
			[]string{"outcome"},
		),

		PaymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "duration_seconds",
				Help:      "End-to-end payment submission duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		PaymentFailureCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "failures_total",
				Help:      "Total number of failed payment submissions by stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		WalletWitnessCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "wallet_witnesses",
				Help:      "Number of vkey witnesses supplied by the wallet",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),

		SubmissionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "trp_submit_seconds",
				Help:      "Latency of the TRP submit call in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		DuplicateSubmissions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "payment",
				Name:      "duplicates_total",
				Help:      "Total number of submissions rejected as duplicates",
			},
		),
	}

	m.ServiceLastStarted.Set(float64(time.Now().Unix()))

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordUptime starts a goroutine that updates the service uptime metric.
func (m *Metrics) RecordUptime(done <-chan struct{}) {
	startTime := time.Now()
	ticker := time.NewTicker(1 * time.Second)

	go func() {
		for {
			select {
			case <-ticker.C:
				m.ServiceUptime.Set(time.Since(startTime).Seconds())
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
}

// RecordRequest records metrics for an HTTP request.
func (m *Metrics) RecordRequest(service, method, path string, status int, duration time.Duration) {
	m.RequestCount.WithLabelValues(service, method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error metric.
func (m *Metrics) RecordError(service, errorType, errorCode string) {
	m.ErrorCount.WithLabelValues(service, errorType, errorCode).Inc()
}

// RecordDependencyStatus records the status of a dependency.
func (m *Metrics) RecordDependencyStatus(service, dependency string, up bool) {
	var value float64
	if up {
		value = 1
	}
	m.DependencyUp.WithLabelValues(service, dependency).Set(value)
}

// RecordDependencyLatency records the latency of a dependency operation.
func (m *Metrics) RecordDependencyLatency(service, dependency, operation string, duration time.Duration) {
	m.DependencyLatency.WithLabelValues(service, dependency, operation).Observe(duration.Seconds())
}

// RecordDependencyError records an error with a dependency.
func (m *Metrics) RecordDependencyError(service, dependency, operation string) {
	m.DependencyErrorRate.WithLabelValues(service, dependency, operation).Inc()
}

// RecordPayment records the outcome and duration of one submission.
func (m *Metrics) RecordPayment(outcome string, duration time.Duration) {
	m.PaymentCount.WithLabelValues(outcome).Inc()
	m.PaymentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordPaymentFailure records the stage and error kind of a failed submission.
func (m *Metrics) RecordPaymentFailure(stage, kind string) {
	m.PaymentFailureCount.WithLabelValues(stage, kind).Inc()
}

// RecordWalletWitnesses records how many witnesses the wallet supplied.
func (m *Metrics) RecordWalletWitnesses(n int) {
	m.WalletWitnessCount.Observe(float64(n))
}

// RecordSubmission records the latency of one downstream submit call.
func (m *Metrics) RecordSubmission(duration time.Duration) {
	m.SubmissionLatency.Observe(duration.Seconds())
}

// RecordDuplicate counts a submission rejected by the dedupe guard.
func (m *Metrics) RecordDuplicate() {
	m.DuplicateSubmissions.Inc()
}
