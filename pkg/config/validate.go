package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/callisto/pkg/redact"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "providers.openai.daily_cap").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Messages returns every field error as a string.
func (e ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// Router rules are skipped entirely when the router is disabled; the
// supporting sections are always checked.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateRouter(cfg)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// Problems returns the router-level configuration problems as strings.
// An empty result means the router can accept traffic. The check is a
// pure function of cfg.
func Problems(cfg *Config) []string {
	errs := validateRouter(cfg)
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// validateRouter checks the rules that gate routing.
func validateRouter(cfg *Config) []FieldError {
	if !cfg.Router.IsEnabled() {
		return nil
	}

	var errs []FieldError

	// Iterate providers in a stable order so messages are deterministic
	ids := make([]string, 0, len(cfg.Providers))
	enabled := 0
	for id, p := range cfg.Providers {
		ids = append(ids, id)
		if p.Enabled {
			enabled++
		}
	}
	sort.Strings(ids)

	if enabled == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one provider must be enabled",
		})
	}

	for _, id := range ids {
		p := cfg.Providers[id]
		if !p.Enabled {
			continue
		}
		errs = append(errs, validateProvider(id, p)...)
	}

	errs = append(errs, validateBreaker("router.breaker", cfg.Router.Breaker, true)...)

	if cfg.Router.GlobalDailyCap < 0 {
		errs = append(errs, FieldError{
			Field:   "router.global_daily_cap",
			Message: "global daily cap must be non-negative",
		})
	}
	if cfg.Router.Window < 0 {
		errs = append(errs, FieldError{
			Field:   "router.window",
			Message: "window must be positive",
		})
	}
	if cfg.Router.FailureFee < 0 {
		errs = append(errs, FieldError{
			Field:   "router.failure_fee",
			Message: "failure fee must be non-negative",
		})
	}

	for _, name := range cfg.Router.Redaction.Categories {
		if _, err := redact.ParseCategory(name); err != nil {
			errs = append(errs, FieldError{
				Field:   "router.redaction.categories",
				Message: err.Error(),
			})
		}
	}
	if cfg.Router.Redaction.MaxInputBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "router.redaction.max_input_bytes",
			Message: "max input bytes must be non-negative",
		})
	}

	return errs
}

// validateProvider checks one enabled provider.
func validateProvider(id string, p ProviderConfig) []FieldError {
	var errs []FieldError
	prefix := fmt.Sprintf("providers.%s", id)

	if !IsKnownFamily(p.Family) {
		errs = append(errs, FieldError{
			Field:   prefix + ".family",
			Message: fmt.Sprintf("unknown provider family %q (supported: %s)", p.Family, strings.Join(Families(), ", ")),
		})
	}

	if !p.IsCredentialExempt() && p.Credential() == "" {
		msg := "credential is required"
		if p.APIKeyEnv != "" {
			msg = fmt.Sprintf("credential is required (environment variable %s is unset)", p.APIKeyEnv)
		}
		errs = append(errs, FieldError{
			Field:   prefix + ".api_key",
			Message: msg,
		})
	}

	if p.DailyCap <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".daily_cap",
			Message: "daily cap must be positive",
		})
	}
	if p.PerRequestCap <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".per_request_cap",
			Message: "per-request cap must be positive",
		})
	}
	if p.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".timeout",
			Message: "timeout must be positive",
		})
	}
	if len(p.Models) == 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".models",
			Message: "at least one model must be listed",
		})
	}

	if p.Priority < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".priority",
			Message: "priority must be non-negative",
		})
	}
	if retries := p.Retries(); retries < 0 || retries > MaxRetryAttempts {
		errs = append(errs, FieldError{
			Field:   prefix + ".retry_attempts",
			Message: fmt.Sprintf("retry attempts must be between 0 and %d", MaxRetryAttempts),
		})
	}
	if p.RetryBackoff < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".retry_backoff",
			Message: "retry backoff must be non-negative",
		})
	}
	if p.QualityScore < 0 || p.QualityScore > MaxQualityScore {
		errs = append(errs, FieldError{
			Field:   prefix + ".quality_score",
			Message: fmt.Sprintf("quality score must be between 0 and %g", MaxQualityScore),
		})
	}
	if p.Pricing.Prompt < 0 || p.Pricing.Completion < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".pricing",
			Message: "prices must be non-negative",
		})
	}
	if p.RateLimit.RequestsPerSecond < 0 || p.RateLimit.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".rate_limit",
			Message: "rate limit values must be non-negative",
		})
	}

	if (p.Family == FamilyOpenAICompatible || p.Family == FamilyLocal) && p.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   prefix + ".base_url",
			Message: fmt.Sprintf("base URL is required for the %s family", p.Family),
		})
	}
	if p.BaseURL != "" {
		if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: fmt.Sprintf("invalid URL %q", p.BaseURL),
			})
		}
	}

	errs = append(errs, validateBreaker(prefix+".breaker", p.Breaker, false)...)

	return errs
}

// validateBreaker checks breaker thresholds. Overrides may leave fields zero.
func validateBreaker(prefix string, b BreakerConfig, required bool) []FieldError {
	var errs []FieldError

	if b.FailureThreshold < 0 || (required && b.FailureThreshold == 0) {
		errs = append(errs, FieldError{
			Field:   prefix + ".failure_threshold",
			Message: "failure threshold must be at least 1",
		})
	}
	if b.ResetTimeout < 0 || (required && b.ResetTimeout == 0) {
		errs = append(errs, FieldError{
			Field:   prefix + ".reset_timeout",
			Message: "reset timeout must be positive",
		})
	}

	return errs
}

// validateAudit validates audit configuration.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Sink {
	case "", "log", "sqlite", "memory", "none":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.sink",
			Message: fmt.Sprintf("invalid sink %q (must be log, sqlite, memory, or none)", cfg.Sink),
		})
	}

	if cfg.Sink == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.path",
			Message: "path is required for the sqlite sink",
		})
	}
	if cfg.SQLite.BufferSize < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite.buffer_size",
			Message: "buffer size must be non-negative",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateLedger validates ledger persistence configuration.
func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "", "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "ledger.sqlite_path",
			Message: "path is required for the sqlite backend",
		})
	}
	if cfg.SnapshotSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SnapshotSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "ledger.snapshot_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q", cfg.Logging.Format),
		})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never, or ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
	}

	return errs
}

// Families returns the supported provider family names.
func Families() []string {
	return []string{
		FamilyOpenAI,
		FamilyAnthropic,
		FamilyGemini,
		FamilyOpenAICompatible,
		FamilyLocal,
		FamilyMock,
	}
}

// IsKnownFamily reports whether name is a supported provider family.
func IsKnownFamily(name string) bool {
	for _, f := range Families() {
		if f == name {
			return true
		}
	}
	return false
}

// IsCredentialExempt reports whether the provider may run without a credential.
func (p ProviderConfig) IsCredentialExempt() bool {
	return p.CredentialExempt || p.Family == FamilyLocal || p.Family == FamilyMock
}

// Credential returns the provider credential. Keys named by api_key_env are
// copied into APIKey when the configuration is loaded.
func (p ProviderConfig) Credential() string {
	return p.APIKey
}
