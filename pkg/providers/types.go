package providers

import (
	"context"
	"log/slog"

	"mercator-hq/callisto/pkg/config"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role" yaml:"role"`

	// Content is the message text content
	Content string `json:"content" yaml:"content"`
}

// Usage tracks token consumption for a call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Call is one model invocation. The deadline comes from the context.
type Call struct {
	// Model is the model identifier sent to the provider.
	Model string

	// Messages is the (already redacted) conversation.
	Messages []Message

	// MaxTokens bounds the completion. Zero lets the client pick.
	MaxTokens int
}

// Response is the normalized result of a successful call.
type Response struct {
	// Text is the generated content.
	Text string `json:"text"`

	// Model is the model that served the call, as reported by the provider.
	Model string `json:"model"`

	// FinishReason is the provider's stop reason, if reported.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is the realized token usage.
	Usage Usage `json:"usage"`

	// CostCents is the realized cost billed for the call.
	CostCents float64 `json:"cost_cents"`
}

// Client invokes a provider. Implementations must return promptly when ctx
// is done and must be safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, call Call) (*Response, error)

	// Close releases connections held by the client.
	Close() error
}

// ClientConfig carries what a Family needs to build a client or estimate a
// call for one configured provider.
type ClientConfig struct {
	// ProviderID is the configured provider id.
	ProviderID string

	// Provider is the provider's configuration. APIKey is already resolved.
	Provider config.ProviderConfig

	// Logger is the parent logger. May be nil.
	Logger *slog.Logger
}

// Estimation is the input to cost estimation.
type Estimation struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Family is the per-API-shape capability. One value serves every provider
// configured with that family.
type Family interface {
	// Name returns the family name used in configuration.
	Name() string

	// RequiresCredential reports whether providers of this family need an
	// API key unless explicitly exempted.
	RequiresCredential() bool

	// NewClient builds a client for one provider.
	NewClient(cfg ClientConfig) (Client, error)

	// Estimate returns the expected cost in cents of a call, for
	// admission control before the call is made.
	Estimate(cfg ClientConfig, est Estimation) float64

	// Classify maps a client error to a FailureKind.
	Classify(err error) FailureKind
}
