// Package telemetry provides observability instrumentation for converge.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring and debugging resource operations.
//
// # Architecture
//
// The telemetry system is built on three pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics flushed at process exit
//
// A converge process runs exactly one resource operation and exits, and its
// standard output carries the operation's result document. Two consequences
// shape this package:
//
//   - Logs never go to stdout. The default sink is stderr; a file path is
//     also accepted. Configurations that ask for stdout are rejected.
//   - There is no metrics HTTP endpoint to scrape. The final state of the
//     registry is written at shutdown, either to a file in the node exporter
//     textfile collector format or to a Pushgateway (or both).
//
// # Usage
//
// Initialize telemetry at process startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "converge"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.WithComponent("engine")
//	logger = logger.WithResourceType("sql.login").WithOperation("set")
//	logger.Info("converging instance")
//	logger.WithError(err).Error("operation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into operation flow and timing:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	span.SetAttributes(
//	    telemetry.AttrResourceType.String("sql.login"),
//	    telemetry.AttrOperation.String("set"),
//	)
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP/gRPC (production), stdout (development), none
// (testing). With the stdout exporter the process must not also be emitting a
// result document; it is meant for trace debugging runs.
//
// # Metrics
//
// Prometheus metrics track operation outcomes:
//
//	tel.Metrics.RecordOperation("sql.login", "set", "success", duration)
//	tel.Metrics.RecordChangedProperties("sql.login", 2)
//	tel.Metrics.SetInDesiredState("sql.login", false)
//	tel.Metrics.RecordError("permission-denied")
//
// At shutdown the registry is flushed to the configured sinks:
//
//	cfg.Metrics.Enabled = true
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/converge.prom"
//	// and/or
//	cfg.Metrics.PushgatewayURL = "http://pushgateway:9091"
//
// # Operation Instrumentation
//
// The engine wraps every resource operation in the same pattern: an
// operation span, a timer, and one outcome record on the way out.
//
//	ctx, span := tel.Tracer.StartOperationSpan(ctx, "sql.login", "set")
//	timer := telemetry.NewTimer()
//
//	err := run(ctx)
//
//	status := "success"
//	if err != nil {
//	    status = "failure"
//	    telemetry.RecordError(span, err)
//	} else {
//	    telemetry.RecordSuccess(span)
//	}
//	span.End()
//	tel.Metrics.RecordOperation("sql.login", "set", status, timer.Duration())
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - converge_operations_total{resource_type,operation,status}
//   - converge_operation_duration_seconds{resource_type,operation}
//   - converge_properties_changed_total{resource_type}
//   - converge_in_desired_state{resource_type}
//   - converge_restarts_flagged_total{resource_type,system}
//   - converge_instances_exported_total{resource_type}
//   - converge_errors_by_category_total{category}
//
// # Graceful Shutdown
//
// Always shut down telemetry to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    fmt.Fprintf(os.Stderr, "telemetry shutdown error: %v\n", err)
//	}
//
// This ensures all pending traces are exported and the metric registry is
// written to its sinks before the process exits.
package telemetry
