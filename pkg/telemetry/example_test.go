package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openconverge/converge/pkg/telemetry"
)

// Example shows the minimal setup: build a config, construct the stack,
// stash the logger in a context and pull it back out downstream.
func Example() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "0.3.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	telemetry.FromContext(ctx).Info("invocation started")

	// Log lines carry timestamps, so there is no Output comment.
}

// Example_operationLogging shows the child-logger helpers that tag every
// line with the resource and operation being converged.
func Example_operationLogging() {
	cfg := telemetry.DevelopmentConfig()

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.
		WithComponent("engine").
		WithResourceType("remote.file").
		WithOperation("set")

	logger.Debug("decoding desired state")
	logger.Info("instance converged")

	err := fmt.Errorf("connection refused")
	logger.WithError(err).Warn("retrying transport dial")

	// Log lines carry timestamps, so there is no Output comment.
}

// Example_stdoutTracing wires the stdout exporter, useful when debugging
// span structure without a collector.
func Example_stdoutTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ctx, root := tel.Tracer.Start(ctx, "converge.run")
	defer root.End()

	root.AddEvent("input decoded")

	_, span := tel.Tracer.StartOperationSpan(ctx, "remote.file", "get")
	time.Sleep(5 * time.Millisecond)
	telemetry.RecordSuccess(span)
	span.End()

	// Exported spans carry timings, so there is no Output comment.
}

// Example_operationInstrumentation demonstrates the pattern the engine
// wraps around every resource operation: one span, one timer, one outcome
// record.
func Example_operationInstrumentation() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	_, span := tel.Tracer.StartOperationSpan(ctx, "sql.login", "set")
	timer := telemetry.NewTimer()

	opErr := convergeLogin()

	status := "success"
	if opErr != nil {
		status = "failure"
		telemetry.RecordError(span, opErr)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
	tel.Metrics.RecordOperation("sql.login", "set", status, timer.Duration())

	fmt.Println("operation instrumented")
	// Output: operation instrumented
}

// convergeLogin stands in for a resource call.
func convergeLogin() error {
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Example_textfileMetrics records convergence counters and flushes them
// where node_exporter's textfile collector will pick them up.
func Example_textfileMetrics() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/converge.prom"

	tel, _ := telemetry.NewTelemetry(cfg)
	// Shutdown flushes the registry to the textfile.
	defer tel.Shutdown(context.Background())

	tel.Metrics.RecordOperation("archive.extract", "set", "success", 140*time.Millisecond)
	tel.Metrics.RecordChangedProperties("archive.extract", 3)
	tel.Metrics.SetInDesiredState("archive.extract", false)
	tel.Metrics.RecordRestartFlagged("remote.file", "service")
	tel.Metrics.RecordError("permission-denied")

	// Flushing happens on Shutdown, so there is no Output comment.
}

// Example_productionSetup starts from ProductionConfig and fills in the
// endpoints a deployed agent would use.
func Example_productionSetup() {
	cfg := telemetry.ProductionConfig()
	cfg.ServiceVersion = "0.3.0"

	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel.infra.example.com:4317"
	cfg.Tracing.SamplingRate = 0.1

	cfg.Metrics.Enabled = true
	cfg.Metrics.PushgatewayURL = "http://pushgateway.infra.example.com:9091"
	cfg.Metrics.PushJob = "converge"

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("production configuration validated")
	// Output: production configuration validated
}

// Example_recordingFailures sends one failure through all three pillars:
// the span, the category counter and the log line.
func Example_recordingFailures() {
	cfg := telemetry.DefaultConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ctx, span := tel.Tracer.StartOperationSpan(ctx, "sql.login", "set")
	defer span.End()

	err := fmt.Errorf("login ops_reader is not mapped to a database")
	telemetry.RecordError(span, err)
	tel.Metrics.RecordError("invalid-argument")
	telemetry.FromContext(ctx).WithError(err).Error("set failed")

	fmt.Println("failure recorded")
	// Output: failure recorded
}
