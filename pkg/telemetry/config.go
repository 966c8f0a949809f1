package telemetry

import (
	"fmt"
	"time"
)

// Config identifies the service and configures the three pillars.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is the running version.
	ServiceVersion string

	// Environment names the deployment environment (development, staging,
	// production).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the structured diagnostic logger. Diagnostics go
// to stderr or a file: standard output is reserved for result documents.
type LoggingConfig struct {
	// Level is the minimum level emitted (trace, debug, info, warn, error,
	// fatal, disabled).
	Level string

	// Format selects console or json output.
	Format string

	// Output is stderr (the default) or a file path.
	Output string

	// EnableCaller adds file:line information to each line.
	EnableCaller bool

	// TimeFormat selects the timestamp encoding (rfc3339, unix, unixms,
	// unixmicro).
	TimeFormat string
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool

	// Exporter selects where spans go: otlp, stdout, or none.
	Exporter string

	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string

	// SamplingRate is the fraction of traces kept, 0 to 1.
	SamplingRate float64

	// ExportTimeout bounds a single export batch.
	ExportTimeout time.Duration

	// Headers are extra headers sent to the OTLP collector.
	Headers map[string]string

	// Insecure disables TLS towards the collector.
	Insecure bool
}

// MetricsConfig configures the metric registry. A process serves one
// operation and exits, so there is nothing to scrape: the final registry
// state is written at shutdown, to a textfile collector file and/or a
// Pushgateway.
type MetricsConfig struct {
	// Enabled turns metric recording on.
	Enabled bool

	// Namespace prefixes every metric name.
	Namespace string

	// TextfilePath is where the final state is written in the node exporter
	// textfile collector format. Empty disables the file sink.
	TextfilePath string

	// PushgatewayURL is the Pushgateway base URL the final state is pushed
	// to. Empty disables the push sink.
	PushgatewayURL string

	// PushJob is the Pushgateway job label. Defaults to the service name.
	PushJob string

	// DefaultHistogramBuckets are the duration buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns the baseline configuration: console logs on stderr
// at info, no tracing, no metrics.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "converge",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       make(map[string]string),
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "converge",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
	}
}

// ProductionConfig returns a configuration tuned for production: JSON logs,
// OTLP tracing at 10% sampling, TLS on.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns a configuration tuned for local work: debug
// console logs with caller information, stdout traces, full sampling.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "development"
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Tracing.validate(); err != nil {
		return err
	}
	return c.Metrics.validate()
}

func (c LoggingConfig) validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}

	// Result documents own standard output; logs may not interleave.
	if c.Output == "stdout" {
		return fmt.Errorf("logs cannot go to stdout: it is reserved for result documents")
	}
	return nil
}

func (c TracingConfig) validate() error {
	if c.Enabled {
		switch c.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Exporter)
		}
		if c.Exporter == "otlp" && c.Endpoint == "" {
			return fmt.Errorf("otlp trace exporter requires an endpoint")
		}
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.SamplingRate)
	}
	return nil
}

func (c MetricsConfig) validate() error {
	if c.Enabled && c.TextfilePath == "" && c.PushgatewayURL == "" {
		return fmt.Errorf("metrics are enabled but neither a textfile path nor a pushgateway url is set")
	}
	return nil
}
