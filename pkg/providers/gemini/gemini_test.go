package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

const generateBody = `{
	"candidates": [{
		"content": {"role": "model", "parts": [{"text": "hi "}, {"text": "there"}]},
		"finishReason": "STOP"
	}],
	"usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 10, "totalTokenCount": 50}
}`

func testConfig(baseURL string) providers.ClientConfig {
	return providers.ClientConfig{
		ProviderID: "gemini",
		Provider: config.ProviderConfig{
			Family:  config.FamilyGemini,
			APIKey:  "test-key",
			BaseURL: baseURL,
			Models:  []string{"gemini-2.0-flash"},
			Pricing: config.PricingConfig{Prompt: 1, Completion: 4},
		},
	}
}

func TestClient_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(generateBody))
	}))
	defer server.Close()

	client, err := New().NewClient(testConfig(server.URL + "/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Invoke(context.Background(), providers.Call{
		Model: "gemini-2.0-flash",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "be brief"},
			{Role: providers.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if resp.Text != "hi there" {
		t.Errorf("Expected text 'hi there', got %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 50 {
		t.Errorf("Expected 50 total tokens, got %d", resp.Usage.TotalTokens)
	}
	// (40*1 + 10*4) / 1000
	if resp.CostCents < 0.08-1e-9 || resp.CostCents > 0.08+1e-9 {
		t.Errorf("Expected cost 0.08, got %v", resp.CostCents)
	}
	if resp.Model != "gemini-2.0-flash" {
		t.Errorf("Expected model fallback to requested model, got %q", resp.Model)
	}
}

func TestClient_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"code": 503, "message": "overloaded", "status": "UNAVAILABLE"}}`))
	}))
	defer server.Close()

	family := New()
	client, err := family.NewClient(testConfig(server.URL + "/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Invoke(context.Background(), providers.Call{
		Model:    "gemini-2.0-flash",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if kind := family.Classify(err); !kind.Retryable() {
		t.Errorf("Expected retryable failure, got %s (%v)", kind, err)
	}
}

func TestFamily_RequiresKey(t *testing.T) {
	cfg := testConfig("")
	cfg.Provider.APIKey = ""
	if _, err := New().NewClient(cfg); err == nil {
		t.Error("Expected error without API key")
	}
	if New().Name() != config.FamilyGemini {
		t.Errorf("Expected family %s, got %s", config.FamilyGemini, New().Name())
	}
}
