package telemetry

import (
	"context"
)

// Telemetry bundles the three diagnostic pillars behind one handle: the
// structured logger, the tracer, and the metrics registry.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry validates the configuration and brings up all three pillars.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext makes the configured logger available downstream through
// FromContext.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// Shutdown exports everything still pending: the metric registry goes to
// its sinks and the tracer flushes open batches. The process exits right
// after, so this is the last chance.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Metrics.Flush(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}
