// Package observability provides logging, Prometheus metrics, health checks,
// OpenTelemetry tracing and graceful shutdown for the finance service.
//
// # Logging
//
// Two loggers share one level. The HTTP layer logs through Logger, a slog
// JSON logger carried in the request context:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	observability.FromContext(ctx).WithError(err).Error("Request failed")
//
// Plans, runners and holders take a logrus logger:
//
//	log := observability.NewComponentLogger(cfg.Observability.LogLevel, os.Stdout)
//
// # Prometheus Metrics
//
// Every recorder is safe on a nil *Metrics:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordSweep("gold", "billing", time.Since(start), err)
//
// # Tracing
//
// InitOTel installs OTLP gRPC exporters. Spans started with StartSpan are
// no-ops until then.
//
//	ctx, span := observability.StartSpan(ctx, "finance.sweep")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: Request logging and metrics middleware
package observability
