// Package telemetry groups the router's observability packages:
//
//   - logging: log/slog setup with credential and PII scrubbing
//   - metrics: Prometheus collector implementing router.Observer
//   - tracing: OpenTelemetry tracer provider with OTLP gRPC export
//   - health: liveness and readiness probes
//
// None of them see request or response text. The router hands them
// identifiers, statuses, costs and latencies only.
package telemetry
