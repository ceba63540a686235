// Package openai implements the openai, openai_compatible and local provider
// families on the official OpenAI Go SDK. OpenAI-compatible servers
// (Together, vLLM, Ollama, LM Studio) speak the same chat completions API
// and differ only in base URL and credential requirements.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

// Family serves one of the chat-completions families.
type Family struct {
	providers.Base

	// legacyMaxTokens sends max_tokens instead of max_completion_tokens,
	// which most compatible servers still expect.
	legacyMaxTokens bool
}

// New returns the openai family.
func New() *Family {
	return &Family{Base: providers.Base{FamilyName: config.FamilyOpenAI}}
}

// NewCompatible returns the openai_compatible family for hosted
// OpenAI-compatible APIs.
func NewCompatible() *Family {
	return &Family{
		Base:            providers.Base{FamilyName: config.FamilyOpenAICompatible},
		legacyMaxTokens: true,
	}
}

// NewLocal returns the local family for self-hosted inference servers,
// which need no credential.
func NewLocal() *Family {
	return &Family{
		Base:            providers.Base{FamilyName: config.FamilyLocal, NoCredential: true},
		legacyMaxTokens: true,
	}
}

// NewClient builds a chat completions client. SDK retries are disabled;
// the router owns retry policy.
func (f *Family) NewClient(cfg providers.ClientConfig) (providers.Client, error) {
	p := cfg.Provider
	if f.RequiresCredential() && p.APIKey == "" && !p.IsCredentialExempt() {
		return nil, &providers.ConfigError{Provider: cfg.ProviderID, Field: "api_key", Message: "credential is required"}
	}
	if p.BaseURL == "" && f.Name() != config.FamilyOpenAI {
		return nil, &providers.ConfigError{Provider: cfg.ProviderID, Field: "base_url", Message: "base_url is required"}
	}

	opts := []option.RequestOption{
		// Always set, so a missing key never falls back to OPENAI_API_KEY.
		option.WithAPIKey(p.APIKey),
		option.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}

	return &Client{
		id:              cfg.ProviderID,
		cfg:             p,
		client:          openaisdk.NewClient(opts...),
		legacyMaxTokens: f.legacyMaxTokens,
	}, nil
}

// Classify reads the HTTP status from SDK errors and falls back to the
// default classification.
func (f *Family) Classify(err error) providers.FailureKind {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return providers.ClassifyStatus(apiErr.StatusCode)
	}
	return f.Base.Classify(err)
}

// Client invokes the chat completions endpoint.
type Client struct {
	id              string
	cfg             config.ProviderConfig
	client          openaisdk.Client
	legacyMaxTokens bool
}

// Invoke sends one chat completion request.
func (c *Client) Invoke(ctx context.Context, call providers.Call) (*providers.Response, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(call.Model),
		Messages: toMessages(call.Messages),
	}
	if n := providers.MaxTokens(call, c.cfg); n > 0 {
		if c.legacyMaxTokens {
			params.MaxTokens = openaisdk.Int(int64(n))
		} else {
			params.MaxCompletionTokens = openaisdk.Int(int64(n))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.translate(err, call.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", c.id, providers.ErrEmptyResponse)
	}

	usage := providers.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return &providers.Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        usage,
		CostCents:    providers.Cost(c.cfg.Pricing, usage.PromptTokens, usage.CompletionTokens),
	}, nil
}

// Close is a no-op; the SDK client holds no resources beyond its transport.
func (c *Client) Close() error {
	return nil
}

// translate maps SDK errors to the typed provider errors.
func (c *Client) translate(err error, model string) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = providers.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return providers.StatusError(c.id, model, apiErr.StatusCode, http.StatusText(apiErr.StatusCode), retryAfter, err)
	}
	return &providers.ProviderError{Provider: c.id, Message: "request failed", Cause: err}
}

func toMessages(messages []providers.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case providers.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case providers.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}
