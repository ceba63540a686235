package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/callisto/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tr.Enabled() {
		t.Error("Expected tracer disabled")
	}

	_, span := tr.Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("Expected no-op span")
	}
	span.End()

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil shutdown error, got %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.TracingConfig
	}{
		{name: "nil config", cfg: nil},
		{name: "unknown sampler", cfg: &config.TracingConfig{Enabled: true, Sampler: "sometimes"}},
		{name: "ratio out of range", cfg: &config.TracingConfig{Enabled: true, Sampler: SamplerRatio, SampleRatio: 1.5}},
		{name: "missing endpoint", cfg: &config.TracingConfig{Enabled: true, Sampler: SamplerAlways}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNew_ExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "callisto-test",
	}, WithExporter(exp), WithServiceVersion("1.2.3"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.Start(context.Background(), "router.Route")
	span.SetAttributes(OutcomeAttributes("success", "openai", 1.5, 1)...)
	if TraceID(ctx) == "" {
		t.Error("Expected trace ID in context")
	}
	span.End()

	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	got := map[string]string{}
	for _, kv := range spans[0].Attributes {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got[string(AttrStatus)] != "success" || got[string(AttrProvider)] != "openai" {
		t.Errorf("Unexpected attributes %v", got)
	}

	var version string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.version" {
			version = kv.Value.AsString()
		}
	}
	if version != "1.2.3" {
		t.Errorf("Expected service.version 1.2.3, got %q", version)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		ratio   float64
		want    string
		wantErr bool
	}{
		{name: "always", sampler: SamplerAlways, want: "AlwaysOnSampler"},
		{name: "never", sampler: SamplerNever, want: "AlwaysOffSampler"},
		{name: "ratio", sampler: SamplerRatio, ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
		{name: "full ratio", sampler: SamplerRatio, ratio: 1, want: "AlwaysOnSampler"},
		{name: "negative ratio", sampler: SamplerRatio, ratio: -0.1, wantErr: true},
		{name: "empty", sampler: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSampler(&config.TracingConfig{Sampler: tt.sampler, SampleRatio: tt.ratio})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr {
				return
			}
			if !strings.Contains(s.Description(), "ParentBased{root:"+tt.want) {
				t.Errorf("Expected parent-based %s, got %s", tt.want, s.Description())
			}
		})
	}
}

// ==== Propagation ====

func TestPropagation_RoundTrip(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(&config.TracingConfig{Enabled: true, Sampler: SamplerAlways, ServiceName: "t"}, WithExporter(exp))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.Start(context.Background(), "upstream")
	defer span.End()

	carrier := map[string]string{}
	InjectToMap(ctx, carrier)
	if carrier[TraceParentKey] == "" {
		t.Fatal("Expected traceparent to be injected")
	}

	extracted := ExtractFromMap(context.Background(), carrier)
	if TraceID(extracted) != TraceID(ctx) {
		t.Errorf("Expected trace %s, got %s", TraceID(ctx), TraceID(extracted))
	}
}

func TestExtractFromMap_Empty(t *testing.T) {
	ctx := ExtractFromMap(context.Background(), map[string]string{})
	if TraceID(ctx) != "" {
		t.Error("Expected no trace context")
	}
}
