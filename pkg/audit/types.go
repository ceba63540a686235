package audit

import (
	"context"
	"time"
)

// Result is the outcome of one attempt.
type Result string

const (
	// ResultSuccess is a provider call that returned a response.
	ResultSuccess Result = "success"

	// ResultFailure is a provider call that failed.
	ResultFailure Result = "failure"

	// ResultSkipped is a candidate rejected by admission control before
	// any call was made.
	ResultSkipped Result = "skipped"
)

// Event is a sanitized record of one routing attempt.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// RequestID links the attempts of one routed request.
	RequestID string `json:"request_id"`

	// Time is when the attempt finished.
	Time time.Time `json:"time"`

	// ProviderID is the provider attempted.
	ProviderID string `json:"provider_id"`

	// Model is the model requested of the provider.
	Model string `json:"model"`

	// Attempt is the 1-based call number against this provider. Zero for
	// skipped candidates.
	Attempt int `json:"attempt"`

	// Result is success, failure or skipped.
	Result Result `json:"result"`

	// Reason explains a skip (per_request_cap, max_cost, rate_limited,
	// budget, breaker_open). Empty for calls.
	Reason string `json:"reason,omitempty"`

	// FailureKind classifies a failure (transient, timeout, auth, ...).
	FailureKind string `json:"failure_kind,omitempty"`

	// CostCents is what the attempt was charged.
	CostCents float64 `json:"cost_cents"`

	// EstimateCents is the admission estimate.
	EstimateCents float64 `json:"estimate_cents"`

	// Latency is the duration of the provider call.
	Latency time.Duration `json:"latency"`
}

// Sink receives events. Record must not block for long and must be safe
// for concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event)
	Close() error
}

// Query filters stored events. Zero fields match everything.
type Query struct {
	// Since and Until bound the event time (inclusive).
	Since time.Time
	Until time.Time

	ProviderID string
	RequestID  string
	Result     Result

	// Limit caps the number of events returned, newest first.
	// Default: 100
	Limit int
}

// DefaultQueryLimit is used when Query.Limit is zero.
const DefaultQueryLimit = 100

// matches reports whether e passes the filters of q.
func (q Query) matches(e Event) bool {
	if !q.Since.IsZero() && e.Time.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Time.After(q.Until) {
		return false
	}
	if q.ProviderID != "" && e.ProviderID != q.ProviderID {
		return false
	}
	if q.RequestID != "" && e.RequestID != q.RequestID {
		return false
	}
	if q.Result != "" && e.Result != q.Result {
		return false
	}
	return true
}

func (q Query) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultQueryLimit
}

// Store is a sink whose events can be read back and pruned.
type Store interface {
	Sink
	Query(ctx context.Context, q Query) ([]Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
