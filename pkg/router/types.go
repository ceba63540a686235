package router

import (
	"strings"
	"time"

	"mercator-hq/callisto/pkg/providers"
)

// Request is one routing request.
type Request struct {
	// ID identifies the request in logs and audit events. Generated when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Text is a single user message. Ignored when Messages is set.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Messages is the conversation to send.
	Messages []providers.Message `json:"messages,omitempty" yaml:"messages,omitempty"`

	// Model is the preferred model. Only providers listing it are
	// candidates. Empty uses each provider's first model.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// MaxCostCents is the largest estimated cost accepted for this call.
	// Zero means no ceiling.
	MaxCostCents float64 `json:"max_cost_cents,omitempty" yaml:"max_cost_cents,omitempty"`

	// MinQuality excludes providers with a lower quality score.
	MinQuality float64 `json:"min_quality,omitempty" yaml:"min_quality,omitempty"`

	// MaxTokens bounds the completion. Zero uses the provider limit.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

func (r Request) messages() []providers.Message {
	if len(r.Messages) > 0 {
		out := make([]providers.Message, len(r.Messages))
		copy(out, r.Messages)
		return out
	}
	return []providers.Message{{Role: providers.RoleUser, Content: r.Text}}
}

// Status is the overall result of a Route call.
type Status string

const (
	StatusSuccess             Status = "success"
	StatusConfigError         Status = "config_error"
	StatusDisabled            Status = "disabled"
	StatusRedactionFailed     Status = "redaction_failed"
	StatusNoProviderAvailable Status = "no_provider_available"
	StatusCanceled            Status = "canceled"
)

// Admission skip reasons.
const (
	SkipPerRequestCap = "per_request_cap"
	SkipMaxCost       = "max_cost"
	SkipRateLimited   = "rate_limited"
	SkipBudget        = "budget"
	SkipBreakerOpen   = "breaker_open"
)

// AttemptRecord describes one provider call or one admission skip.
type AttemptRecord struct {
	ProviderID string `json:"provider_id" yaml:"provider_id"`
	Model      string `json:"model" yaml:"model"`

	// Attempt is the 1-based call number against this provider; zero for skips.
	Attempt int `json:"attempt" yaml:"attempt"`

	// Result is "success", "failure" or "skipped".
	Result string `json:"result" yaml:"result"`

	// Reason is the skip reason, if skipped.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// FailureKind classifies a failed call.
	FailureKind providers.FailureKind `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`

	CostCents     float64       `json:"cost_cents" yaml:"cost_cents"`
	EstimateCents float64       `json:"estimate_cents" yaml:"estimate_cents"`
	Latency       time.Duration `json:"latency" yaml:"latency"`

	// Err is the call error, if any.
	Err error `json:"-" yaml:"-"`
}

// Outcome is the result of one Route call. It is never nil.
type Outcome struct {
	Status    Status `json:"status" yaml:"status"`
	RequestID string `json:"request_id" yaml:"request_id"`

	// ProviderID and Model identify the provider that served the request.
	ProviderID string `json:"provider_id,omitempty" yaml:"provider_id,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`

	// SentText is the text that left the process, after redaction.
	SentText string `json:"sent_text,omitempty" yaml:"sent_text,omitempty"`

	// CostCents is the total charged, failure fees included.
	CostCents float64 `json:"cost_cents" yaml:"cost_cents"`

	// Latency is the wall time of the whole Route call.
	Latency time.Duration `json:"latency" yaml:"latency"`

	// Redactions is the number of redacted substrings.
	Redactions int `json:"redactions" yaml:"redactions"`

	// Response is the provider response on success.
	Response *providers.Response `json:"response,omitempty" yaml:"response,omitempty"`

	Attempts []AttemptRecord `json:"attempts,omitempty" yaml:"attempts,omitempty"`

	// Err explains any status other than success.
	Err error `json:"-" yaml:"-"`
}

// Error returns the outcome error text, or "".
func (o *Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func joinContents(messages []providers.Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// Observer receives routing measurements. The metrics collector implements it.
type Observer interface {
	ObserveRoute(status string, providerID string, latency time.Duration, costCents float64)
	ObserveAttempt(providerID, result, failureKind string, latency time.Duration)
	ObserveSkip(providerID, reason string)
	ObserveBreakerState(providerID, state string)
	ObserveBudget(providerID string, usedCents, capCents float64)
	ObserveRedactions(category string, count int)
}

type nopObserver struct{}

func (nopObserver) ObserveRoute(string, string, time.Duration, float64)  {}
func (nopObserver) ObserveAttempt(string, string, string, time.Duration) {}
func (nopObserver) ObserveSkip(string, string)                           {}
func (nopObserver) ObserveBreakerState(string, string)                   {}
func (nopObserver) ObserveBudget(string, float64, float64)               {}
func (nopObserver) ObserveRedactions(string, int)                        {}
