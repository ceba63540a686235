package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validProvider() ProviderConfig {
	return ProviderConfig{
		Enabled:       true,
		Family:        FamilyOpenAI,
		Models:        []string{"gpt-4o"},
		Priority:      1,
		DailyCap:      100,
		PerRequestCap: 10,
		Timeout:       30 * time.Second,
		APIKey:        "sk-test",
		RetryAttempts: Int(2),
	}
}

func validConfig() *Config {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"openai": validProvider(),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
	if problems := Problems(cfg); len(problems) != 0 {
		t.Errorf("Expected no problems, got %v", problems)
	}
}

func TestValidate_MinimalConfig(t *testing.T) {
	if err := Validate(MinimalConfig()); err != nil {
		t.Errorf("Expected minimal config to be valid, got %v", err)
	}
}

func TestProblems_DisabledRouterSkipsChecks(t *testing.T) {
	cfg := &Config{
		Router:    RouterConfig{Enabled: Bool(false)},
		Providers: map[string]ProviderConfig{"broken": {Enabled: true}},
	}

	if problems := Problems(cfg); len(problems) != 0 {
		t.Errorf("Expected disabled router to report no problems, got %v", problems)
	}
}

func TestProblems_NoEnabledProvider(t *testing.T) {
	cfg := validConfig()
	p := cfg.Providers["openai"]
	p.Enabled = false
	cfg.Providers["openai"] = p

	problems := Problems(cfg)
	if len(problems) != 1 {
		t.Fatalf("Expected 1 problem, got %d: %v", len(problems), problems)
	}
	if !strings.Contains(problems[0], "at least one provider must be enabled") {
		t.Errorf("Unexpected problem: %s", problems[0])
	}
}

func TestProblems_ProviderRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ProviderConfig)
		field  string
	}{
		{
			name:   "missing credential",
			mutate: func(p *ProviderConfig) { p.APIKey = "" },
			field:  "providers.openai.api_key",
		},
		{
			name:   "zero daily cap",
			mutate: func(p *ProviderConfig) { p.DailyCap = 0 },
			field:  "providers.openai.daily_cap",
		},
		{
			name:   "negative per-request cap",
			mutate: func(p *ProviderConfig) { p.PerRequestCap = -1 },
			field:  "providers.openai.per_request_cap",
		},
		{
			name:   "zero timeout",
			mutate: func(p *ProviderConfig) { p.Timeout = 0 },
			field:  "providers.openai.timeout",
		},
		{
			name:   "no models",
			mutate: func(p *ProviderConfig) { p.Models = nil },
			field:  "providers.openai.models",
		},
		{
			name:   "unknown family",
			mutate: func(p *ProviderConfig) { p.Family = "carrier-pigeon" },
			field:  "providers.openai.family",
		},
		{
			name:   "too many retries",
			mutate: func(p *ProviderConfig) { p.RetryAttempts = Int(11) },
			field:  "providers.openai.retry_attempts",
		},
		{
			name:   "quality out of range",
			mutate: func(p *ProviderConfig) { p.QualityScore = 11 },
			field:  "providers.openai.quality_score",
		},
		{
			name:   "compatible family without base url",
			mutate: func(p *ProviderConfig) { p.Family = FamilyOpenAICompatible },
			field:  "providers.openai.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			p := cfg.Providers["openai"]
			tt.mutate(&p)
			cfg.Providers["openai"] = p

			problems := Problems(cfg)
			found := false
			for _, msg := range problems {
				if strings.HasPrefix(msg, tt.field+":") {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected problem for %s, got %v", tt.field, problems)
			}
		})
	}
}

func TestProblems_CollectsAllViolations(t *testing.T) {
	cfg := validConfig()
	p := cfg.Providers["openai"]
	p.APIKey = ""
	p.DailyCap = 0
	p.PerRequestCap = 0
	p.Timeout = 0
	p.Models = nil
	cfg.Providers["openai"] = p

	problems := Problems(cfg)
	if len(problems) != 5 {
		t.Errorf("Expected 5 problems, got %d: %v", len(problems), problems)
	}
}

func TestProblems_CredentialExemptions(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderConfig
		wantKey  bool
	}{
		{
			name:     "local family is exempt",
			provider: ProviderConfig{Family: FamilyLocal, BaseURL: "http://localhost:11434/v1"},
			wantKey:  false,
		},
		{
			name:     "mock family is exempt",
			provider: ProviderConfig{Family: FamilyMock},
			wantKey:  false,
		},
		{
			name:     "explicit exemption",
			provider: ProviderConfig{Family: FamilyOpenAICompatible, BaseURL: "http://vllm:8000/v1", CredentialExempt: true},
			wantKey:  false,
		},
		{
			name:     "hosted family needs a key",
			provider: ProviderConfig{Family: FamilyAnthropic},
			wantKey:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.provider
			p.Enabled = true
			p.Models = []string{"m"}
			p.DailyCap = 10
			p.PerRequestCap = 1
			p.Timeout = time.Second

			cfg := &Config{Providers: map[string]ProviderConfig{"p": p}}
			ApplyDefaults(cfg)

			hasKeyProblem := false
			for _, msg := range Problems(cfg) {
				if strings.HasPrefix(msg, "providers.p.api_key") {
					hasKeyProblem = true
				}
			}
			if hasKeyProblem != tt.wantKey {
				t.Errorf("Expected credential problem %v, got %v", tt.wantKey, hasKeyProblem)
			}
		})
	}
}

func TestProblems_DisabledProvidersNotChecked(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["spare"] = ProviderConfig{Enabled: false}

	if problems := Problems(cfg); len(problems) != 0 {
		t.Errorf("Expected disabled provider to be ignored, got %v", problems)
	}
}

func TestProblems_UnknownRedactionCategory(t *testing.T) {
	cfg := validConfig()
	cfg.Router.Redaction.Categories = []string{"email", "dna_sequence"}

	problems := Problems(cfg)
	if len(problems) != 1 || !strings.HasPrefix(problems[0], "router.redaction.categories") {
		t.Errorf("Expected a redaction category problem, got %v", problems)
	}
}

func TestValidate_SupportingSections(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Sink = "kafka"
	cfg.Audit.Retention.Schedule = "every tuesday"
	cfg.Ledger.Backend = "redis"
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation to fail")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 4 {
		t.Errorf("Expected 4 errors, got %d: %v", len(verr.Errors), verr.Messages())
	}
	if !strings.Contains(err.Error(), "validation failed with 4 errors") {
		t.Errorf("Error message should mention the error count: %s", err.Error())
	}
}

func TestValidate_TracingRequiresEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Tracing.Enabled = true

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "telemetry.tracing.endpoint") {
		t.Errorf("Expected tracing endpoint error, got %v", err)
	}
}
