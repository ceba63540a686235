package config

import "time"

// Default values for configuration fields.
const (
	// Router defaults
	DefaultWindow                  = 24 * time.Hour
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerResetTimeout     = 60 * time.Second
	DefaultRedactionMaxInputBytes  = 1 << 20

	// Provider defaults
	DefaultProviderTimeout = 30 * time.Second
	DefaultRetryAttempts   = 2
	DefaultRetryBackoff    = 200 * time.Millisecond
	DefaultMaxOutputTokens = 1024
	DefaultRateLimitBurst  = 1
	DefaultMockResponse    = "mock response"
	MaxRetryAttempts       = 10
	MaxQualityScore        = 10.0

	// Audit defaults
	DefaultAuditSink              = "log"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditBufferSize        = 1000
	DefaultAuditBusyTimeout       = 5 * time.Second
	DefaultAuditRetentionDays     = 30
	DefaultAuditRetentionSchedule = "0 3 * * *"

	// Ledger defaults
	DefaultLedgerBackend          = "memory"
	DefaultLedgerSQLitePath       = "data/ledger.db"
	DefaultLedgerSnapshotSchedule = "@every 1m"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsNamespace = "callisto"
	DefaultMetricsSubsystem = "router"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingService   = "callisto"
)

// Provider family names.
const (
	FamilyOpenAI           = "openai"
	FamilyAnthropic        = "anthropic"
	FamilyGemini           = "gemini"
	FamilyOpenAICompatible = "openai_compatible"
	FamilyLocal            = "local"
	FamilyMock             = "mock"
)

// DefaultLatencyBuckets are the default histogram buckets for call latency.
var DefaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ApplyDefaults fills zero-valued fields with their defaults.
// Fields the operator set explicitly are left untouched.
func ApplyDefaults(cfg *Config) {
	// Router defaults
	if cfg.Router.Window == 0 {
		cfg.Router.Window = DefaultWindow
	}
	if cfg.Router.Breaker.FailureThreshold == 0 {
		cfg.Router.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if cfg.Router.Breaker.ResetTimeout == 0 {
		cfg.Router.Breaker.ResetTimeout = DefaultBreakerResetTimeout
	}
	if cfg.Router.Redaction.MaxInputBytes == 0 {
		cfg.Router.Redaction.MaxInputBytes = DefaultRedactionMaxInputBytes
	}
	if cfg.Router.Redaction.Categories == nil {
		cfg.Router.Redaction.Categories = []string{
			"ssn", "email", "phone", "credit_card", "tax_id", "street_address", "ip",
		}
	}

	// Provider defaults
	for id, p := range cfg.Providers {
		applyProviderDefaults(&p)
		cfg.Providers[id] = p
	}

	// Audit defaults
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = DefaultAuditSink
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.Audit.SQLite.BufferSize == 0 {
		cfg.Audit.SQLite.BufferSize = DefaultAuditBufferSize
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultAuditBusyTimeout
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultAuditRetentionDays
	}
	if cfg.Audit.Retention.Schedule == "" {
		cfg.Audit.Retention.Schedule = DefaultAuditRetentionSchedule
	}

	// Ledger defaults
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = DefaultLedgerSQLitePath
	}
	if cfg.Ledger.SnapshotSchedule == "" {
		cfg.Ledger.SnapshotSchedule = DefaultLedgerSnapshotSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.LatencyBuckets) == 0 {
		cfg.Telemetry.Metrics.LatencyBuckets = DefaultLatencyBuckets
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.RetryAttempts == nil {
		n := DefaultRetryAttempts
		p.RetryAttempts = &n
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = DefaultRetryBackoff
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if p.RateLimit.RequestsPerSecond > 0 && p.RateLimit.Burst == 0 {
		p.RateLimit.Burst = DefaultRateLimitBurst
	}
	if p.Family == FamilyMock && p.Mock.Response == "" {
		p.Mock.Response = DefaultMockResponse
	}
}

// MinimalConfig returns a small valid configuration with a single mock
// provider. It is useful for tests and as a starting template.
func MinimalConfig() *Config {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"mock": {
				Enabled:       true,
				Family:        FamilyMock,
				Models:        []string{"mock-1"},
				Priority:      1,
				DailyCap:      1000,
				PerRequestCap: 100,
				Pricing:       PricingConfig{Prompt: 0.1, Completion: 0.2},
				QualityScore:  5,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// Bool returns a pointer to b, for optional boolean fields.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to n, for optional integer fields.
func Int(n int) *int {
	return &n
}
