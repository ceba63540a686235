// Package gemini implements the gemini provider family on the Google Gen AI
// Go SDK (Gemini Developer API backend).
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

// Family is the gemini provider family.
type Family struct {
	providers.Base
}

// New returns the gemini family.
func New() *Family {
	return &Family{Base: providers.Base{FamilyName: config.FamilyGemini}}
}

// NewClient builds a Gen AI client for the Gemini API backend.
func (f *Family) NewClient(cfg providers.ClientConfig) (providers.Client, error) {
	p := cfg.Provider
	if p.APIKey == "" && !p.IsCredentialExempt() {
		return nil, &providers.ConfigError{Provider: cfg.ProviderID, Field: "api_key", Message: "credential is required"}
	}

	cc := &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{id: cfg.ProviderID, cfg: p, client: client}, nil
}

// Classify reads the status code from Gen AI API errors.
func (f *Family) Classify(err error) providers.FailureKind {
	if code := apiErrorCode(err); code > 0 {
		return providers.ClassifyStatus(code)
	}
	return f.Base.Classify(err)
}

// Client invokes generateContent.
type Client struct {
	id     string
	cfg    config.ProviderConfig
	client *genai.Client
}

// Invoke sends one generateContent request.
func (c *Client) Invoke(ctx context.Context, call providers.Call) (*providers.Response, error) {
	system, rest := providers.SplitSystem(call.Messages)

	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if n := providers.MaxTokens(call, c.cfg); n > 0 {
		gc.MaxOutputTokens = int32(n)
	}

	resp, err := c.client.Models.GenerateContent(ctx, call.Model, toContents(rest), gc)
	if err != nil {
		return nil, c.translate(err, call.Model)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%s: %w", c.id, providers.ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var usage providers.Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	model := resp.ModelVersion
	if model == "" {
		model = call.Model
	}

	return &providers.Response{
		Text:         text.String(),
		Model:        model,
		FinishReason: string(candidate.FinishReason),
		Usage:        usage,
		CostCents:    providers.Cost(c.cfg.Pricing, usage.PromptTokens, usage.CompletionTokens),
	}, nil
}

// Close is a no-op; the Gen AI client has nothing to release.
func (c *Client) Close() error {
	return nil
}

func (c *Client) translate(err error, model string) error {
	if code := apiErrorCode(err); code > 0 {
		return providers.StatusError(c.id, model, code, err.Error(), 0, err)
	}
	return &providers.ProviderError{Provider: c.id, Message: "request failed", Cause: err}
}

// apiErrorCode extracts the HTTP status of a Gen AI API error, or zero.
func apiErrorCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// toContents converts the conversation. Gemini names the assistant role
// "model".
func toContents(messages []providers.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == providers.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return out
}
