// Package providerfactory selects the provider family implementation for
// each configured provider and manages the resulting clients.
package providerfactory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mockproviders "mercator-hq/callisto/internal/providers"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
	"mercator-hq/callisto/pkg/providers/anthropic"
	"mercator-hq/callisto/pkg/providers/gemini"
	"mercator-hq/callisto/pkg/providers/openai"
)

// Registry maps family names to Family implementations. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]providers.Family
}

// NewRegistry creates a registry holding the given families.
func NewRegistry(families ...providers.Family) *Registry {
	r := &Registry{families: make(map[string]providers.Family, len(families))}
	for _, f := range families {
		r.Register(f)
	}
	return r
}

// Default returns a registry with every built-in family:
//   - "openai": OpenAI Chat Completions
//   - "openai_compatible": OpenAI-shaped APIs (OpenRouter, Together, vLLM)
//   - "local": OpenAI-shaped local servers that need no key (Ollama, LM Studio)
//   - "anthropic": Anthropic Messages API
//   - "gemini": Google Gemini API
//   - "mock": in-process mock
func Default() *Registry {
	return NewRegistry(
		openai.New(),
		openai.NewCompatible(),
		openai.NewLocal(),
		anthropic.New(),
		gemini.New(),
		mockproviders.NewFamily(),
	)
}

// Register adds or replaces a family under its name.
func (r *Registry) Register(f providers.Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[f.Name()] = f
}

// Lookup returns the family registered under name.
func (r *Registry) Lookup(name string) (providers.Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	return f, ok
}

// Names returns the registered family names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient builds the client for one configured provider using the family
// named in its configuration.
//
// Example:
//
//	registry := providerfactory.Default()
//	family, client, err := registry.NewClient("openai-gpt4", cfg.Providers["openai-gpt4"], logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func (r *Registry) NewClient(id string, p config.ProviderConfig, logger *slog.Logger) (providers.Family, providers.Client, error) {
	family, ok := r.Lookup(p.Family)
	if !ok {
		return nil, nil, &providers.ConfigError{
			Provider: id,
			Field:    "family",
			Message:  fmt.Sprintf("unsupported provider family: %q (supported: %v)", p.Family, r.Names()),
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("creating provider client",
		"provider", id,
		"family", p.Family,
		"base_url", p.BaseURL,
	)

	client, err := family.NewClient(providers.ClientConfig{
		ProviderID: id,
		Provider:   p,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider %q: %w", id, err)
	}

	return family, client, nil
}
