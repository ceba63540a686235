package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
router:
  breaker:
    failure_threshold: 3
    reset_timeout: 30s
  redaction:
    categories: [email, ssn]
  global_daily_cap: 500

providers:
  openai-gpt4:
    enabled: true
    family: openai
    models: [gpt-4o]
    priority: 1
    daily_cap: 100
    per_request_cap: 10
    timeout: 20s
    api_key_env: CALLISTO_TEST_OPENAI_KEY
    pricing:
      prompt: 0.25
      completion: 1.0
    quality_score: 9
  llama-openrouter:
    enabled: true
    family: openai_compatible
    base_url: https://openrouter.ai/api/v1
    models: [meta-llama/llama-3-70b-instruct]
    priority: 2
    daily_cap: 50
    per_request_cap: 5
    api_key: or-key
    retry_attempts: 0
`

const sampleTOML = `
[router]
global_daily_cap = 250.0

[providers.local]
enabled = true
family = "local"
base_url = "http://localhost:11434/v1"
models = ["llama3"]
priority = 3
daily_cap = 1000.0
per_request_cap = 100.0
timeout = "5s"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("CALLISTO_TEST_OPENAI_KEY", "sk-from-env")
	path := writeFile(t, "callisto.yaml", sampleYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Router.Breaker.FailureThreshold != 3 {
		t.Errorf("Expected failure threshold 3, got %d", cfg.Router.Breaker.FailureThreshold)
	}
	if cfg.Router.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("Expected reset timeout 30s, got %v", cfg.Router.Breaker.ResetTimeout)
	}
	if len(cfg.Router.Redaction.Categories) != 2 {
		t.Errorf("Expected 2 redaction categories, got %v", cfg.Router.Redaction.Categories)
	}

	openai := cfg.Providers["openai-gpt4"]
	if openai.APIKey != "sk-from-env" {
		t.Errorf("Expected credential resolved from env, got %q", openai.APIKey)
	}
	if openai.Timeout != 20*time.Second {
		t.Errorf("Expected timeout 20s, got %v", openai.Timeout)
	}
	if openai.Retries() != DefaultRetryAttempts {
		t.Errorf("Expected default retries %d, got %d", DefaultRetryAttempts, openai.Retries())
	}

	router := cfg.Providers["llama-openrouter"]
	if router.Retries() != 0 {
		t.Errorf("Expected explicit zero retries to survive defaults, got %d", router.Retries())
	}
	if router.Timeout != DefaultProviderTimeout {
		t.Errorf("Expected default timeout, got %v", router.Timeout)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected loaded config to be valid, got %v", err)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeFile(t, "callisto.toml", sampleTOML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Router.GlobalDailyCap != 250 {
		t.Errorf("Expected global cap 250, got %v", cfg.Router.GlobalDailyCap)
	}
	local, ok := cfg.Providers["local"]
	if !ok {
		t.Fatal("Expected provider 'local'")
	}
	if local.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", local.Timeout)
	}
	if problems := Problems(cfg); len(problems) != 0 {
		t.Errorf("Expected no problems, got %v", problems)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := writeFile(t, "bad.yaml", "providers: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "callisto.yaml", sampleYAML)

	t.Setenv("CALLISTO_TEST_OPENAI_KEY", "")
	t.Setenv("CALLISTO_ROUTER_ENABLED", "false")
	t.Setenv("CALLISTO_PROVIDERS_OPENAI_GPT4_API_KEY", "sk-override")
	t.Setenv("CALLISTO_PROVIDERS_LLAMA_OPENROUTER_DAILY_CAP", "75")
	t.Setenv("CALLISTO_TELEMETRY_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Router.IsEnabled() {
		t.Error("Expected router disabled by environment")
	}
	if got := cfg.Providers["openai-gpt4"].APIKey; got != "sk-override" {
		t.Errorf("Expected API key override, got %q", got)
	}
	if got := cfg.Providers["llama-openrouter"].DailyCap; got != 75 {
		t.Errorf("Expected daily cap 75, got %v", got)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	path := writeFile(t, "callisto.yaml", sampleYAML)
	t.Setenv("CALLISTO_PROVIDERS_OPENAI_GPT4_TIMEOUT", "soon")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("Expected error for malformed timeout override")
	}
}
