// Package config provides configuration management for Callisto.
//
// This package loads the router configuration from YAML or TOML files,
// applies defaults and environment variable overrides, and validates the
// result. Validation collects every problem instead of stopping at the first.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("callisto.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("callisto.toml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CALLISTO_SECTION_FIELD:
//
//   - CALLISTO_ROUTER_ENABLED overrides router.enabled
//   - CALLISTO_PROVIDERS_OPENAI_GPT4_API_KEY overrides providers.openai-gpt4.api_key
//   - CALLISTO_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Provider credentials may also be read from the variable named by a
// provider's api_key_env field.
//
// # Validation
//
// Problems returns the router-level rules as strings; an empty slice means
// the router can accept traffic. A disabled router has no problems.
// Validate additionally checks the audit, ledger and telemetry sections and
// returns a ValidationError.
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and hands over a new
// configuration only after it passes Validate.
package config
