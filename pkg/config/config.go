package config

import "time"

// Config is the root configuration structure for Callisto.
// It contains the router settings, the provider table, and the supporting
// audit, ledger persistence and telemetry sections.
type Config struct {
	// Router contains the global routing switches: enablement, circuit
	// breaker thresholds, redaction and the global budget cap.
	Router RouterConfig `yaml:"router" toml:"router"`

	// Providers maps provider id to provider configuration.
	// Keys are provider ids (e.g., "openai-gpt4", "llama-openrouter").
	Providers map[string]ProviderConfig `yaml:"providers" toml:"providers"`

	// Audit configures where sanitized attempt events are written.
	Audit AuditConfig `yaml:"audit" toml:"audit"`

	// Ledger configures persistence of the current budget window.
	Ledger LedgerConfig `yaml:"ledger" toml:"ledger"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// RouterConfig contains the global router configuration.
type RouterConfig struct {
	// Enabled controls whether the router accepts traffic at all.
	// A disabled router skips validation and rejects every request.
	// Default: true
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	// Breaker contains the default circuit breaker thresholds.
	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`

	// Redaction controls PII redaction of outbound text.
	Redaction RedactionConfig `yaml:"redaction" toml:"redaction"`

	// GlobalDailyCap caps spend across all providers within one window,
	// in cents. Zero disables the global cap.
	// Default: 0
	GlobalDailyCap float64 `yaml:"global_daily_cap" toml:"global_daily_cap"`

	// Window is the accounting window length for daily caps.
	// Default: 24h
	Window time.Duration `yaml:"window" toml:"window"`

	// FailureFee is charged, in cents, when a reserved provider call fails.
	// Zero releases the whole reservation on failure.
	// Default: 0
	FailureFee float64 `yaml:"failure_fee" toml:"failure_fee"`

	// Logging controls the verbosity of routing logs.
	Logging RouterLoggingConfig `yaml:"logging" toml:"logging"`
}

// IsEnabled reports whether the router is enabled. A nil flag means enabled.
func (r RouterConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// ResetTimeout is how long an open circuit waits before allowing a trial call.
	// Default: 60s
	ResetTimeout time.Duration `yaml:"reset_timeout" toml:"reset_timeout"`
}

// RedactionConfig controls the PII redactor.
type RedactionConfig struct {
	// Enabled turns redaction on for every outbound request.
	// Default: true
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	// Categories lists the categories to redact.
	// Options: "ssn", "email", "phone", "credit_card", "tax_id",
	// "street_address", "ip"
	// Default: all categories
	Categories []string `yaml:"categories" toml:"categories"`

	// MaxInputBytes bounds the size of text accepted for redaction.
	// Default: 1048576 (1MB)
	MaxInputBytes int `yaml:"max_input_bytes" toml:"max_input_bytes"`
}

// IsEnabled reports whether redaction is enabled. A nil flag means enabled.
func (r RedactionConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// RouterLoggingConfig controls routing log output.
type RouterLoggingConfig struct {
	// Verbose logs every admission decision at info level instead of debug.
	// Default: false
	Verbose bool `yaml:"verbose" toml:"verbose"`

	// Sanitize scrubs PII from log arguments.
	// Default: true
	Sanitize *bool `yaml:"sanitize" toml:"sanitize"`
}

// SanitizeEnabled reports whether log scrubbing is on. A nil flag means on.
func (l RouterLoggingConfig) SanitizeEnabled() bool {
	return l.Sanitize == nil || *l.Sanitize
}

// ProviderConfig contains configuration for one model provider.
type ProviderConfig struct {
	// Enabled controls whether the provider is a routing candidate.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Family selects the client implementation.
	// Options: "openai", "anthropic", "gemini", "openai_compatible", "local", "mock"
	Family string `yaml:"family" toml:"family"`

	// Models lists the model identifiers this provider serves.
	// The first entry is used when a request names no model.
	Models []string `yaml:"models" toml:"models"`

	// Priority orders candidates; lower values are tried first.
	// Default: 0
	Priority int `yaml:"priority" toml:"priority"`

	// DailyCap is the spend cap within one window, in cents.
	DailyCap float64 `yaml:"daily_cap" toml:"daily_cap"`

	// PerRequestCap is the largest estimated cost admitted for one request, in cents.
	PerRequestCap float64 `yaml:"per_request_cap" toml:"per_request_cap"`

	// RetryAttempts is the number of retries after the first transient failure.
	// Default: 2
	RetryAttempts *int `yaml:"retry_attempts" toml:"retry_attempts"`

	// RetryBackoff is the initial delay between retries. It doubles per retry.
	// Default: 200ms
	RetryBackoff time.Duration `yaml:"retry_backoff" toml:"retry_backoff"`

	// Timeout bounds a single provider call.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// APIKey is the provider credential.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// APIKeyEnv names an environment variable holding the credential.
	// Example: "OPENAI_API_KEY"
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`

	// BaseURL overrides the provider endpoint.
	// Required for "openai_compatible" and "local" families.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// CredentialExempt marks a provider that needs no credential.
	// The "local" and "mock" families are always exempt.
	CredentialExempt bool `yaml:"credential_exempt" toml:"credential_exempt"`

	// Pricing is the cost model in cents per 1K tokens.
	Pricing PricingConfig `yaml:"pricing" toml:"pricing"`

	// QualityScore rates output quality from 0 to 10.
	// Requests may demand a minimum score.
	QualityScore float64 `yaml:"quality_score" toml:"quality_score"`

	// MaxOutputTokens bounds completion length.
	// Default: 1024
	MaxOutputTokens int `yaml:"max_output_tokens" toml:"max_output_tokens"`

	// RateLimit bounds the local request rate sent to this provider.
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`

	// Breaker overrides the router breaker thresholds for this provider.
	// Zero fields inherit the router setting.
	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`

	// Mock configures the "mock" family.
	Mock MockConfig `yaml:"mock" toml:"mock"`
}

// Retries returns the configured retry count.
func (p ProviderConfig) Retries() int {
	if p.RetryAttempts == nil {
		return DefaultRetryAttempts
	}
	return *p.RetryAttempts
}

// PricingConfig holds token prices in cents per 1K tokens.
type PricingConfig struct {
	// Prompt is the cost per 1K prompt tokens.
	Prompt float64 `yaml:"prompt" toml:"prompt"`

	// Completion is the cost per 1K completion tokens.
	Completion float64 `yaml:"completion" toml:"completion"`
}

// RateLimitConfig configures a token bucket on outbound calls.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`

	// Burst is the bucket size.
	// Default: 1 when RequestsPerSecond is set
	Burst int `yaml:"burst" toml:"burst"`
}

// MockConfig configures the in-process mock family.
type MockConfig struct {
	// Response is the text returned on success.
	// Default: "mock response"
	Response string `yaml:"response" toml:"response"`

	// Latency delays every call.
	Latency time.Duration `yaml:"latency" toml:"latency"`

	// FailWith makes every call fail with the given failure kind.
	// Options: "", "transient", "timeout", "rate_limited", "auth", "invalid_request"
	FailWith string `yaml:"fail_with" toml:"fail_with"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Sink selects where attempt events go.
	// Options: "log", "sqlite", "memory", "none"
	// Default: "log"
	Sink string `yaml:"sink" toml:"sink"`

	// SQLite configures the "sqlite" sink.
	SQLite AuditSQLiteConfig `yaml:"sqlite" toml:"sqlite"`

	// Retention configures pruning of stored events.
	Retention RetentionConfig `yaml:"retention" toml:"retention"`
}

// AuditSQLiteConfig configures the SQLite audit sink.
type AuditSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/audit.db"
	Path string `yaml:"path" toml:"path"`

	// BufferSize is the async write buffer length.
	// Default: 1000
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" toml:"busy_timeout"`
}

// RetentionConfig configures audit event pruning.
type RetentionConfig struct {
	// Days is how long events are kept. Zero keeps events forever.
	// Default: 30
	Days int `yaml:"days" toml:"days"`

	// Schedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// LedgerConfig configures budget window persistence.
type LedgerConfig struct {
	// Backend selects the snapshot store.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend" toml:"backend"`

	// SQLitePath is the database file for the "sqlite" backend.
	// Default: "data/ledger.db"
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`

	// SnapshotSchedule is the cron expression for snapshots.
	// Default: "@every 1m"
	SnapshotSchedule string `yaml:"snapshot_schedule" toml:"snapshot_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level" toml:"level"`

	// Format is the output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format" toml:"format"`

	// AddSource includes file:line in log records.
	// Default: false
	AddSource bool `yaml:"add_source" toml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls metrics collection.
	// Default: true
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "callisto"
	Namespace string `yaml:"namespace" toml:"namespace"`

	// Subsystem is the second metric name segment.
	// Default: "router"
	Subsystem string `yaml:"subsystem" toml:"subsystem"`

	// LatencyBuckets are histogram buckets for call latency in seconds.
	LatencyBuckets []float64 `yaml:"latency_buckets" toml:"latency_buckets"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler" toml:"sampler"`

	// SampleRatio is the fraction of traces to sample.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure" toml:"insecure"`

	// ServiceName is the service name in traces.
	// Default: "callisto"
	ServiceName string `yaml:"service_name" toml:"service_name"`
}
