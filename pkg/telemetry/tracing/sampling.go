package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mercator-hq/callisto/pkg/config"
)

// Sampler names accepted in telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// newSampler picks the root sampler for route spans. Batch records that carry
// a traceparent inherit the upstream decision; only requests without one are
// subject to the configured strategy.
func newSampler(cfg *config.TracingConfig) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler

	switch cfg.Sampler {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio:
		ratio := cfg.SampleRatio
		if ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %g", ratio)
		}
		if ratio == 1 {
			root = sdktrace.AlwaysSample()
		} else {
			root = sdktrace.TraceIDRatioBased(ratio)
		}
	default:
		return nil, fmt.Errorf("unknown sampler %q (valid: %s, %s, %s)",
			cfg.Sampler, SamplerAlways, SamplerNever, SamplerRatio)
	}

	return sdktrace.ParentBased(root), nil
}
