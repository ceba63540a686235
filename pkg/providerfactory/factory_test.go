package providerfactory

import (
	"errors"
	"testing"

	mockproviders "mercator-hq/callisto/internal/providers"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

func TestDefault_Families(t *testing.T) {
	registry := Default()

	for _, name := range config.Families() {
		t.Run(name, func(t *testing.T) {
			family, ok := registry.Lookup(name)
			if !ok {
				t.Fatalf("Expected family %s to be registered", name)
			}
			if family.Name() != name {
				t.Errorf("Expected name %s, got %s", name, family.Name())
			}
		})
	}

	if got := len(registry.Names()); got != len(config.Families()) {
		t.Errorf("Expected %d families, got %d", len(config.Families()), got)
	}
}

func TestRegistry_NewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider config.ProviderConfig
		wantErr  bool
	}{
		{
			name:     "openai",
			provider: config.ProviderConfig{Family: config.FamilyOpenAI, APIKey: "test-key"},
		},
		{
			name:     "anthropic",
			provider: config.ProviderConfig{Family: config.FamilyAnthropic, APIKey: "test-key"},
		},
		{
			name:     "local without key",
			provider: config.ProviderConfig{Family: config.FamilyLocal, BaseURL: "http://localhost:11434/v1"},
		},
		{
			name:     "mock",
			provider: config.ProviderConfig{Family: config.FamilyMock},
		},
		{
			name:     "openai without key",
			provider: config.ProviderConfig{Family: config.FamilyOpenAI},
			wantErr:  true,
		},
		{
			name:     "compatible without base url",
			provider: config.ProviderConfig{Family: config.FamilyOpenAICompatible, APIKey: "test-key"},
			wantErr:  true,
		},
	}

	registry := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			family, client, err := registry.NewClient("p", tt.provider, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			defer client.Close()
			if family.Name() != tt.provider.Family {
				t.Errorf("Expected family %s, got %s", tt.provider.Family, family.Name())
			}
		})
	}
}

func TestRegistry_UnknownFamily(t *testing.T) {
	_, _, err := NewRegistry().NewClient("p", config.ProviderConfig{Family: "carrier-pigeon"}, nil)

	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "family" {
		t.Errorf("Expected field family, got %s", cfgErr.Field)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	first := mockproviders.NewFamily()
	second := mockproviders.NewFamily()
	registry := NewRegistry(first)
	registry.Register(second)

	family, ok := registry.Lookup(config.FamilyMock)
	if !ok {
		t.Fatal("Expected mock family")
	}
	if family != providers.Family(second) {
		t.Error("Expected the later registration to win")
	}
}
