// Package tracing configures OpenTelemetry tracing for the router.
//
// New installs a tracer provider exporting over OTLP gRPC and sets the W3C
// trace context propagator globally. The router opens a "router.Route"
// span per request and a "router.Attempt" child span per provider call;
// attribute keys are defined in this package.
//
//	t, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer t.Shutdown(context.Background())
//	r, _ := router.New(cfg, router.WithTracer(t.Tracer()))
//
// With tracing disabled, New returns a no-op tracer.
//
// Batch input records may carry a W3C traceparent; ExtractFromMap turns it
// into a parent context so routing spans join the caller's trace.
package tracing
