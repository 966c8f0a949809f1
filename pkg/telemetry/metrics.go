package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics provides Prometheus metrics for converge. An invocation is a
// single short-lived process, so nothing is scraped live: the final state of
// the registry is flushed at shutdown to a textfile and/or a Pushgateway.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Convergence metrics
	propertiesChanged *prometheus.CounterVec
	inDesiredState    *prometheus.GaugeVec
	restartsFlagged   *prometheus.CounterVec

	// Export metrics
	instancesExported *prometheus.CounterVec

	// Error metrics
	errorsByCategory *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "converge"
	}
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Operation metrics
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of resource operations executed",
			},
			[]string{"resource_type", "operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of resource operations in seconds",
				Buckets:   buckets,
			},
			[]string{"resource_type", "operation"},
		),

		// Convergence metrics
		propertiesChanged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "properties_changed_total",
				Help:      "Total number of properties found out of desired state",
			},
			[]string{"resource_type"},
		),
		inDesiredState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_desired_state",
				Help:      "Whether the last tested instance was in desired state (1=yes, 0=no)",
			},
			[]string{"resource_type"},
		),
		restartsFlagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restarts_flagged_total",
				Help:      "Total number of restart hints reported by set operations",
			},
			[]string{"resource_type", "system"},
		),

		// Export metrics
		instancesExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_exported_total",
				Help:      "Total number of instances emitted by export operations",
			},
			[]string{"resource_type"},
		),

		// Error metrics
		errorsByCategory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_category_total",
				Help:      "Total number of failures by failure category",
			},
			[]string{"category"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.propertiesChanged,
		m.inDesiredState,
		m.restartsFlagged,
		m.instancesExported,
		m.errorsByCategory,
	)

	return m, nil
}

// Operation Metrics

// RecordOperation records a completed resource operation with its status and
// duration.
func (m *Metrics) RecordOperation(resourceType, operation, status string, duration time.Duration) {
	if m.operationsTotal == nil {
		return
	}
	m.operationsTotal.WithLabelValues(resourceType, operation, status).Inc()
	m.operationDuration.WithLabelValues(resourceType, operation).Observe(duration.Seconds())
}

// Convergence Metrics

// RecordChangedProperties records the number of properties a diff reported.
func (m *Metrics) RecordChangedProperties(resourceType string, count int) {
	if m.propertiesChanged == nil {
		return
	}
	m.propertiesChanged.WithLabelValues(resourceType).Add(float64(count))
}

// SetInDesiredState sets the convergence verdict gauge for a resource type.
func (m *Metrics) SetInDesiredState(resourceType string, inState bool) {
	if m.inDesiredState == nil {
		return
	}
	value := 0.0
	if inState {
		value = 1.0
	}
	m.inDesiredState.WithLabelValues(resourceType).Set(value)
}

// RecordRestartFlagged records a restart hint reported by a set operation.
func (m *Metrics) RecordRestartFlagged(resourceType, system string) {
	if m.restartsFlagged == nil {
		return
	}
	m.restartsFlagged.WithLabelValues(resourceType, system).Inc()
}

// Export Metrics

// RecordExportedInstance records one instance emitted by an export operation.
func (m *Metrics) RecordExportedInstance(resourceType string) {
	if m.instancesExported == nil {
		return
	}
	m.instancesExported.WithLabelValues(resourceType).Inc()
}

// Error Metrics

// RecordError records a failure by its category.
func (m *Metrics) RecordError(category string) {
	if m.errorsByCategory == nil {
		return
	}
	m.errorsByCategory.WithLabelValues(category).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Registry returns the underlying Prometheus registry, or nil when metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Flush writes the final metric state to the configured sinks. It is called
// once, right before the process exits.
func (m *Metrics) Flush(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}

	if m.config.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	if m.config.PushgatewayURL != "" {
		job := m.config.PushJob
		if job == "" {
			job = "converge"
		}
		pusher := push.New(m.config.PushgatewayURL, job).Gatherer(m.registry)
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("failed to push metrics: %w", err)
		}
	}

	return nil
}
