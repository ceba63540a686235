package providers

import "mercator-hq/callisto/pkg/config"

// Cost returns the cost in cents of the given usage under p. Prices are
// cents per 1K tokens.
func Cost(p config.PricingConfig, promptTokens, completionTokens int) float64 {
	return (float64(promptTokens)*p.Prompt + float64(completionTokens)*p.Completion) / 1000
}

// Base implements the Family methods that most families share. Families
// embed it and override what differs.
type Base struct {
	// FamilyName is returned by Name.
	FamilyName string

	// NoCredential marks families that never need an API key.
	NoCredential bool
}

// Name returns the family name.
func (b Base) Name() string {
	return b.FamilyName
}

// RequiresCredential reports whether an API key is needed.
func (b Base) RequiresCredential() bool {
	return !b.NoCredential
}

// Estimate prices the estimated prompt tokens plus the completion budget
// with the provider's configured pricing.
func (b Base) Estimate(cfg ClientConfig, est Estimation) float64 {
	prompt := EstimateMessageTokens(est.Messages)
	completion := CompletionTokens(prompt, est.MaxTokens, cfg.Provider.MaxOutputTokens)
	return Cost(cfg.Provider.Pricing, prompt, completion)
}

// Classify uses the package default classification.
func (b Base) Classify(err error) FailureKind {
	return Classify(err)
}

// MaxTokens returns the completion limit to send: the call's MaxTokens
// bounded by the provider's max_output_tokens, or max_output_tokens when the
// call sets none.
func MaxTokens(call Call, p config.ProviderConfig) int {
	n := call.MaxTokens
	if n <= 0 || (p.MaxOutputTokens > 0 && n > p.MaxOutputTokens) {
		n = p.MaxOutputTokens
	}
	return n
}

// SplitSystem separates system messages from the conversation, for APIs
// that take the system prompt as a separate field.
func SplitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
