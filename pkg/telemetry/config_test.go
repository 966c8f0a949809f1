package telemetry

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name: "production config is valid",
			mutate: func(c *Config) {
				*c = *ProductionConfig()
				c.Tracing.Endpoint = "collector:4317"
			},
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: "service name",
		},
		{
			name:    "missing service version",
			mutate:  func(c *Config) { c.ServiceVersion = "" },
			wantErr: "service version",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "stdout logging rejected",
			mutate:  func(c *Config) { c.Logging.Output = "stdout" },
			wantErr: "reserved for result documents",
		},
		{
			name: "invalid trace exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "zipkin"
			},
			wantErr: "invalid trace exporter",
		},
		{
			name: "otlp exporter requires endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
				c.Tracing.Endpoint = ""
			},
			wantErr: "requires an endpoint",
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: "sampling rate",
		},
		{
			name:    "metrics enabled without a sink",
			mutate:  func(c *Config) { c.Metrics.Enabled = true },
			wantErr: "neither a textfile path nor a pushgateway url",
		},
		{
			name: "metrics enabled with textfile sink",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.TextfilePath = "/tmp/converge.prom"
			},
		},
		{
			name: "metrics enabled with pushgateway sink",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.PushgatewayURL = "http://pushgateway:9091"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewLoggerRejectsStdout(t *testing.T) {
	cfg := DefaultConfig().Logging
	cfg.Output = "stdout"

	if _, err := NewLogger(cfg); err == nil {
		t.Fatal("NewLogger() expected error for stdout output, got nil")
	}
}

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	cfg := DefaultConfig().Logging
	cfg.Output = ""

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
}
