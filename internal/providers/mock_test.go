package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

func newClient(t *testing.T, mock config.MockConfig) (*Family, *Client) {
	t.Helper()
	family := NewFamily()
	_, err := family.NewClient(providers.ClientConfig{
		ProviderID: "m",
		Provider: config.ProviderConfig{
			Family:  config.FamilyMock,
			Models:  []string{"mock-1"},
			Pricing: config.PricingConfig{Prompt: 1, Completion: 1},
			Mock:    mock,
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return family, family.Client("m")
}

var call = providers.Call{
	Model:    "mock-1",
	Messages: []providers.Message{{Role: providers.RoleUser, Content: "hello"}},
}

func TestClient_DefaultResponse(t *testing.T) {
	_, c := newClient(t, config.MockConfig{})

	resp, err := c.Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.Text != config.DefaultMockResponse {
		t.Errorf("Expected %q, got %q", config.DefaultMockResponse, resp.Text)
	}
	if resp.CostCents <= 0 {
		t.Errorf("Expected positive cost, got %v", resp.CostCents)
	}
	if c.Calls() != 1 {
		t.Errorf("Expected 1 call, got %d", c.Calls())
	}
	if c.LastCall().Model != "mock-1" {
		t.Errorf("Expected last call model mock-1, got %q", c.LastCall().Model)
	}
}

func TestClient_Script(t *testing.T) {
	_, c := newClient(t, config.MockConfig{Response: "fallback"})
	boom := errors.New("boom")
	c.Script(Result{Err: boom}, Result{Text: "second", CostCents: 7})

	if _, err := c.Invoke(context.Background(), call); !errors.Is(err, boom) {
		t.Errorf("Expected scripted error, got %v", err)
	}

	resp, err := c.Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.Text != "second" || resp.CostCents != 7 {
		t.Errorf("Expected scripted text and cost, got %q %v", resp.Text, resp.CostCents)
	}

	resp, err = c.Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.Text != "fallback" {
		t.Errorf("Expected fallback after script drained, got %q", resp.Text)
	}
}

func TestClient_FailWith(t *testing.T) {
	kinds := []providers.FailureKind{
		providers.FailureTransient,
		providers.FailureTimeout,
		providers.FailureRateLimited,
		providers.FailureAuth,
		providers.FailureInvalidRequest,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			_, c := newClient(t, config.MockConfig{FailWith: string(kind)})
			_, err := c.Invoke(context.Background(), call)
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := providers.Classify(err); got != kind {
				t.Errorf("Expected %s, got %s", kind, got)
			}
		})
	}
}

func TestClient_LatencyHonorsContext(t *testing.T) {
	_, c := newClient(t, config.MockConfig{Latency: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Invoke(ctx, call)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected prompt return, took %s", elapsed)
	}
}

func TestFamily_FixEstimate(t *testing.T) {
	family, _ := newClient(t, config.MockConfig{})
	cfg := providers.ClientConfig{ProviderID: "m"}

	family.FixEstimate("m", 15)
	if got := family.Estimate(cfg, providers.Estimation{}); got != 15 {
		t.Errorf("Expected fixed estimate 15, got %v", got)
	}
	if family.RequiresCredential() {
		t.Error("Expected mock family to need no credential")
	}
}

func TestClient_Close(t *testing.T) {
	_, c := newClient(t, config.MockConfig{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !c.Closed() {
		t.Error("Expected client to report closed")
	}
}
