package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "CALLISTO_"

// LoadConfig loads configuration from a YAML or TOML file at the specified
// path. The format is chosen by file extension; ".toml" selects TOML and
// anything else is parsed as YAML.
//
// Defaults are applied and credentials named by api_key_env are resolved.
// Router rules are not enforced here: a router built from an invalid
// configuration refuses traffic instead. Call Validate to check explicitly.
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Environment variables follow the naming
// convention CALLISTO_SECTION_FIELD (e.g., CALLISTO_ROUTER_ENABLED).
// Environment variables always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Overrides may have introduced new providers or keys
	ApplyDefaults(cfg)
	ResolveCredentials(cfg)

	return cfg, nil
}

// Parse decodes configuration data in the given format ("yaml" or "toml"),
// applies defaults and resolves credentials.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config

	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
	case "yaml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", format)
	}

	ApplyDefaults(&cfg)
	ResolveCredentials(&cfg)

	return &cfg, nil
}

// ResolveCredentials copies credentials from the environment variables named
// by api_key_env into providers that have no inline key.
func ResolveCredentials(cfg *Config) {
	for id, p := range cfg.Providers {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
			cfg.Providers[id] = p
		}
	}
}

// formatFor picks a decoder from the file extension.
func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are reported rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError

	// Router overrides
	if val := os.Getenv(EnvPrefix + "ROUTER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Router.Enabled = &b
		} else {
			errs = append(errs, envError("ROUTER_ENABLED", err))
		}
	}
	if val := os.Getenv(EnvPrefix + "ROUTER_GLOBAL_DAILY_CAP"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Router.GlobalDailyCap = f
		} else {
			errs = append(errs, envError("ROUTER_GLOBAL_DAILY_CAP", err))
		}
	}
	if val := os.Getenv(EnvPrefix + "ROUTER_FAILURE_FEE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Router.FailureFee = f
		} else {
			errs = append(errs, envError("ROUTER_FAILURE_FEE", err))
		}
	}

	// Telemetry overrides
	if val := os.Getenv(EnvPrefix + "TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv(EnvPrefix + "TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	// Audit overrides
	if val := os.Getenv(EnvPrefix + "AUDIT_SINK"); val != "" {
		cfg.Audit.Sink = val
	}
	if val := os.Getenv(EnvPrefix + "AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}

	// Provider overrides for every configured provider
	for id := range cfg.Providers {
		errs = append(errs, applyProviderEnvOverrides(cfg, id)...)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// applyProviderEnvOverrides applies overrides for a single provider.
// Provider environment variables follow the format CALLISTO_PROVIDERS_<ID>_<FIELD>
// where ID is the uppercase provider id with dashes replaced by underscores.
func applyProviderEnvOverrides(cfg *Config, id string) []FieldError {
	var errs []FieldError

	provider := cfg.Providers[id]
	key := strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
	prefix := fmt.Sprintf("PROVIDERS_%s_", key)

	if val := os.Getenv(EnvPrefix + prefix + "ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			provider.Enabled = b
		} else {
			errs = append(errs, envError(prefix+"ENABLED", err))
		}
	}
	if val := os.Getenv(EnvPrefix + prefix + "API_KEY"); val != "" {
		provider.APIKey = val
	}
	if val := os.Getenv(EnvPrefix + prefix + "BASE_URL"); val != "" {
		provider.BaseURL = val
	}
	if val := os.Getenv(EnvPrefix + prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
		} else {
			errs = append(errs, envError(prefix+"TIMEOUT", err))
		}
	}
	if val := os.Getenv(EnvPrefix + prefix + "DAILY_CAP"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			provider.DailyCap = f
		} else {
			errs = append(errs, envError(prefix+"DAILY_CAP", err))
		}
	}

	cfg.Providers[id] = provider
	return errs
}

func envError(name string, err error) FieldError {
	return FieldError{
		Field:   EnvPrefix + name,
		Message: fmt.Sprintf("invalid value: %v", err),
	}
}
