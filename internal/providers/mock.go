// Package providers contains the in-process mock provider family. It backs
// the "mock" family in configuration and serves as a scriptable test double
// for router tests.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providers"
)

// Result is one scripted outcome for a mock call. A nil Err with empty Text
// falls back to the configured mock response.
type Result struct {
	Text string
	Err  error

	// CostCents overrides the computed cost when non-zero.
	CostCents float64

	// Delay overrides the configured latency when non-zero.
	Delay time.Duration
}

// Family is the mock provider family. It remembers the client built for
// each provider id so tests can script it.
type Family struct {
	providers.Base

	mu        sync.Mutex
	clients   map[string]*Client
	estimates map[string]float64
}

// NewFamily creates a mock family.
func NewFamily() *Family {
	return &Family{
		Base:      providers.Base{FamilyName: config.FamilyMock, NoCredential: true},
		clients:   make(map[string]*Client),
		estimates: make(map[string]float64),
	}
}

// NewClient builds a mock client from the provider's mock settings.
func (f *Family) NewClient(cfg providers.ClientConfig) (providers.Client, error) {
	c := &Client{
		id:       cfg.ProviderID,
		response: cfg.Provider.Mock.Response,
		latency:  cfg.Provider.Mock.Latency,
		pricing:  cfg.Provider.Pricing,
		maxOut:   cfg.Provider.MaxOutputTokens,
	}
	if c.response == "" {
		c.response = config.DefaultMockResponse
	}
	if kind := cfg.Provider.Mock.FailWith; kind != "" {
		c.failWith = providers.FailureKind(kind)
	}

	f.mu.Lock()
	f.clients[cfg.ProviderID] = c
	f.mu.Unlock()

	return c, nil
}

// Client returns the client built for providerID, or nil.
func (f *Family) Client(providerID string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[providerID]
}

// FixEstimate makes Estimate return cents for providerID.
func (f *Family) FixEstimate(providerID string, cents float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates[providerID] = cents
}

// Estimate returns the fixed estimate for the provider if one was set,
// otherwise the token based default.
func (f *Family) Estimate(cfg providers.ClientConfig, est providers.Estimation) float64 {
	f.mu.Lock()
	cents, ok := f.estimates[cfg.ProviderID]
	f.mu.Unlock()
	if ok {
		return cents
	}
	return f.Base.Estimate(cfg, est)
}

// Client is a scriptable mock client.
type Client struct {
	id       string
	response string
	latency  time.Duration
	pricing  config.PricingConfig
	maxOut   int
	failWith providers.FailureKind

	mu       sync.Mutex
	script   []Result
	lastCall providers.Call
	calls    atomic.Int64
	closed   atomic.Bool
}

// Script queues results returned by the next calls, in order. When the
// queue is empty the configured behavior applies.
func (c *Client) Script(results ...Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, results...)
}

// FailNext queues n failures of the given kind.
func (c *Client) FailNext(n int, kind providers.FailureKind) {
	results := make([]Result, n)
	for i := range results {
		results[i] = Result{Err: FailureError(c.id, kind)}
	}
	c.Script(results...)
}

// Calls returns the number of Invoke calls made.
func (c *Client) Calls() int {
	return int(c.calls.Load())
}

// LastCall returns the most recent call.
func (c *Client) LastCall() providers.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCall
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Invoke returns the next scripted result, waiting for the configured
// latency first. It returns the context error if ctx ends during the wait.
func (c *Client) Invoke(ctx context.Context, call providers.Call) (*providers.Response, error) {
	c.calls.Add(1)

	c.mu.Lock()
	c.lastCall = call
	var (
		next   Result
		queued bool
	)
	if len(c.script) > 0 {
		next, queued = c.script[0], true
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	delay := c.latency
	if next.Delay > 0 {
		delay = next.Delay
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if next.Err != nil {
		return nil, next.Err
	}
	if !queued && c.failWith != "" {
		return nil, FailureError(c.id, c.failWith)
	}

	text := next.Text
	if text == "" {
		text = c.response
	}

	prompt := providers.EstimateMessageTokens(call.Messages)
	completion := providers.EstimateTokens(text)
	cost := next.CostCents
	if cost == 0 {
		cost = providers.Cost(c.pricing, prompt, completion)
	}

	model := call.Model
	return &providers.Response{
		Text:         text,
		Model:        model,
		FinishReason: "stop",
		Usage: providers.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		CostCents: cost,
	}, nil
}

// Close marks the client closed.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// errNetwork stands in for a dropped connection.
var errNetwork = errors.New("connection reset by peer")

// FailureError returns an error that classifies as kind.
func FailureError(providerID string, kind providers.FailureKind) error {
	switch kind {
	case providers.FailureTimeout:
		return &providers.TimeoutError{Provider: providerID, Timeout: time.Second}
	case providers.FailureRateLimited:
		return &providers.RateLimitError{Provider: providerID, Message: "mock rate limit"}
	case providers.FailureAuth:
		return &providers.AuthError{Provider: providerID, Message: "mock credential rejected"}
	case providers.FailureInvalidRequest:
		return &providers.InvalidRequestError{Provider: providerID, Message: "mock malformed request"}
	case providers.FailureTransient:
		return &providers.ProviderError{Provider: providerID, StatusCode: 503, Message: "mock unavailable", Cause: errNetwork}
	default:
		return fmt.Errorf("mock provider %q: unclassified failure", providerID)
	}
}
