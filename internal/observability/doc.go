// Package observability groups the logging, metrics and tracing packages.
//
// Subpackages:
//   - logging: slog logger construction and context propagation
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry spans around dispatch batches and subscribers
package observability
