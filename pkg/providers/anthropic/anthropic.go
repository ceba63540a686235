// Package anthropic implements the anthropic provider family on the
// Anthropic Go SDK (Messages API).
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

// defaultMaxTokens is sent when neither the call nor the provider sets a
// limit; the Messages API requires one.
const defaultMaxTokens = 1024

// Family is the anthropic provider family.
type Family struct {
	providers.Base
}

// New returns the anthropic family.
func New() *Family {
	return &Family{Base: providers.Base{FamilyName: config.FamilyAnthropic}}
}

// NewClient builds a Messages API client with SDK retries disabled.
func (f *Family) NewClient(cfg providers.ClientConfig) (providers.Client, error) {
	p := cfg.Provider
	if p.APIKey == "" && !p.IsCredentialExempt() {
		return nil, &providers.ConfigError{Provider: cfg.ProviderID, Field: "api_key", Message: "credential is required"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(p.APIKey),
		option.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}

	return &Client{
		id:     cfg.ProviderID,
		cfg:    p,
		client: anthropicsdk.NewClient(opts...),
	}, nil
}

// Classify reads the HTTP status from SDK errors. Anthropic reports
// overload as 529, which is transient like any 5xx.
func (f *Family) Classify(err error) providers.FailureKind {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return providers.ClassifyStatus(apiErr.StatusCode)
	}
	return f.Base.Classify(err)
}

// Client invokes the Messages API.
type Client struct {
	id     string
	cfg    config.ProviderConfig
	client anthropicsdk.Client
}

// Invoke sends one message request.
func (c *Client) Invoke(ctx context.Context, call providers.Call) (*providers.Response, error) {
	system, rest := providers.SplitSystem(call.Messages)

	maxTokens := providers.MaxTokens(call, c.cfg)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(call.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toMessages(rest),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.translate(err, call.Model)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", c.id, providers.ErrEmptyResponse)
	}

	usage := providers.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &providers.Response{
		Text:         text.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage:        usage,
		CostCents:    providers.Cost(c.cfg.Pricing, usage.PromptTokens, usage.CompletionTokens),
	}, nil
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}

func (c *Client) translate(err error, model string) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = providers.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return providers.StatusError(c.id, model, apiErr.StatusCode, http.StatusText(apiErr.StatusCode), retryAfter, err)
	}
	return &providers.ProviderError{Provider: c.id, Message: "request failed", Cause: err}
}

// toMessages converts the conversation. The Messages API has no system
// role inside the conversation; callers split system messages out first.
func toMessages(messages []providers.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropicsdk.NewTextBlock(m.Content)
		if m.Role == providers.RoleAssistant {
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		} else {
			out = append(out, anthropicsdk.NewUserMessage(block))
		}
	}
	return out
}
