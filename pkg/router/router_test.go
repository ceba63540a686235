package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mockproviders "mercator-hq/callisto/internal/providers"
	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/breaker"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/providerfactory"
	"mercator-hq/callisto/pkg/providers"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mockProvider(priority int, dailyCap, perRequestCap float64, models ...string) config.ProviderConfig {
	if len(models) == 0 {
		models = []string{"mock-1"}
	}
	return config.ProviderConfig{
		Enabled:       true,
		Family:        config.FamilyMock,
		Models:        models,
		Priority:      priority,
		DailyCap:      dailyCap,
		PerRequestCap: perRequestCap,
		RetryAttempts: config.Int(2),
		RetryBackoff:  time.Millisecond,
		Timeout:       time.Second,
		QualityScore:  5,
	}
}

// twoProviders is A (priority 1, budget 100, per-request cap 10) and
// B (priority 2, budget 100, per-request cap 100).
func twoProviders() *config.Config {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"a": mockProvider(1, 100, 10),
			"b": mockProvider(2, 100, 100),
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type fixture struct {
	router *Router
	family *mockproviders.Family
	sink   *audit.MemorySink
	clock  *fakeClock
	delays []time.Duration
	mu     sync.Mutex
}

func newFixture(t *testing.T, cfg *config.Config, estimates map[string]float64) *fixture {
	t.Helper()
	f := &fixture{
		family: mockproviders.NewFamily(),
		sink:   audit.NewMemorySink(),
		clock:  newFakeClock(),
	}
	for id, cents := range estimates {
		f.family.FixEstimate(id, cents)
	}

	r, err := New(cfg,
		WithRegistry(providerfactory.NewRegistry(f.family)),
		WithAuditSink(f.sink),
		WithClock(f.clock.Now),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.delays = append(f.delays, d)
		f.mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { r.Close() })

	f.router = r
	return f
}

func (f *fixture) client(id string) *mockproviders.Client {
	return f.family.Client(id)
}

func (f *fixture) used(t *testing.T, id string) float64 {
	t.Helper()
	s, err := f.router.Ledger().Status(id)
	if err != nil {
		t.Fatalf("Status(%s) failed: %v", id, err)
	}
	return s.Used
}

func attemptSummary(out *Outcome) []string {
	var s []string
	for _, a := range out.Attempts {
		entry := a.ProviderID + ":" + a.Result
		if a.Reason != "" {
			entry += ":" + a.Reason
		}
		if a.FailureKind != "" {
			entry += ":" + string(a.FailureKind)
		}
		s = append(s, entry)
	}
	return s
}

func assertAttempts(t *testing.T, out *Outcome, want ...string) {
	t.Helper()
	got := attemptSummary(out)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected attempts %v, got %v", want, got)
	}
}

// ==== Routing scenarios ====

func TestRoute_SkipsProviderOverPerRequestCap(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 15, "b": 15})

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%v)", out.Status, out.Err)
	}
	if out.ProviderID != "b" {
		t.Errorf("Expected provider b, got %s", out.ProviderID)
	}
	assertAttempts(t, out, "a:skipped:per_request_cap", "b:success")
	if f.client("a").Calls() != 0 {
		t.Errorf("Expected no calls to a, got %d", f.client("a").Calls())
	}
	if used := f.used(t, "a"); used != 0 {
		t.Errorf("Expected nothing reserved on a, got %v", used)
	}
}

func TestRoute_SkipsOpenBreaker(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 1, "b": 1})

	a := f.router.providers["a"].breaker
	for i := 0; i < config.DefaultBreakerFailureThreshold; i++ {
		gen, _ := a.Allow()
		a.RecordFailure(gen)
	}
	if a.State() != breaker.Open {
		t.Fatalf("Expected a open, got %s", a.State())
	}

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.ProviderID != "b" {
		t.Errorf("Expected provider b, got %s", out.ProviderID)
	}
	assertAttempts(t, out, "a:skipped:breaker_open", "b:success")
	if f.client("a").Calls() != 0 {
		t.Errorf("Expected no calls to a, got %d", f.client("a").Calls())
	}
	if snap := a.Snapshot(); snap.ConsecutiveFailures != config.DefaultBreakerFailureThreshold {
		t.Errorf("Expected skip not counted as failure, got %d failures", snap.ConsecutiveFailures)
	}
}

func TestRoute_FallsBackAfterTransientRetries(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 5, "b": 5})
	f.client("a").FailNext(3, providers.FailureTransient)

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusSuccess || out.ProviderID != "b" {
		t.Fatalf("Expected success on b, got %s on %q (%v)", out.Status, out.ProviderID, out.Err)
	}
	if calls := f.client("a").Calls(); calls != 3 {
		t.Errorf("Expected 3 calls to a (1 + 2 retries), got %d", calls)
	}
	assertAttempts(t, out,
		"a:failure:transient", "a:failure:transient", "a:failure:transient", "b:success")

	events, _ := f.sink.Query(context.Background(), audit.Query{ProviderID: "a"})
	if len(events) != 3 {
		t.Errorf("Expected 3 audit events for a, got %d", len(events))
	}
	if used := f.used(t, "a"); used != 0 {
		t.Errorf("Expected a reservation released, got %v used", used)
	}
	if snap := f.router.providers["a"].breaker.Snapshot(); snap.ConsecutiveFailures != 1 {
		t.Errorf("Expected one breaker failure for the exhausted provider, got %d", snap.ConsecutiveFailures)
	}
	if stats := f.router.Stats(); stats.Retries != 2 || stats.Fallbacks != 1 {
		t.Errorf("Expected 2 retries and 1 fallback, got %d and %d", stats.Retries, stats.Fallbacks)
	}
}

func TestRoute_NonTransientFailsFast(t *testing.T) {
	kinds := []providers.FailureKind{providers.FailureAuth, providers.FailureInvalidRequest}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, twoProviders(), map[string]float64{"a": 5, "b": 5})
			f.client("a").FailNext(1, kind)

			out := f.router.Route(context.Background(), Request{Text: "hello"})

			if out.ProviderID != "b" {
				t.Errorf("Expected provider b, got %s", out.ProviderID)
			}
			if calls := f.client("a").Calls(); calls != 1 {
				t.Errorf("Expected exactly 1 call to a, got %d", calls)
			}
			if len(f.delays) != 0 {
				t.Errorf("Expected no backoff, got %v", f.delays)
			}
		})
	}
}

func TestRoute_NoProvidersEnabled(t *testing.T) {
	cfg := twoProviders()
	for id, p := range cfg.Providers {
		p.Enabled = false
		cfg.Providers[id] = p
	}
	f := newFixture(t, cfg, nil)

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusNoProviderAvailable {
		t.Errorf("Expected %s, got %s", StatusNoProviderAvailable, out.Status)
	}
	if !errors.Is(out.Err, ErrNoProviderAvailable) || !errors.Is(out.Err, ErrConfigInvalid) {
		t.Errorf("Expected error to match both sentinels, got %v", out.Err)
	}
}

func TestRoute_AllProvidersFail(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 5, "b": 5})
	f.client("a").FailNext(1, providers.FailureAuth)
	f.client("b").FailNext(1, providers.FailureAuth)

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusNoProviderAvailable {
		t.Fatalf("Expected %s, got %s", StatusNoProviderAvailable, out.Status)
	}
	var exhausted *ExhaustedError
	if !errors.As(out.Err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %T", out.Err)
	}
	if len(exhausted.Attempted) != 2 {
		t.Errorf("Expected 2 attempted providers, got %v", exhausted.Attempted)
	}
	if !errors.Is(out.Err, &providers.AuthError{}) {
		t.Errorf("Expected last error to be an AuthError, got %v", exhausted.LastErr)
	}
}

// ==== Refusals ====

func TestRoute_Disabled(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.Enabled = config.Bool(false)
	f := newFixture(t, cfg, nil)

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusDisabled || !errors.Is(out.Err, ErrRouterDisabled) {
		t.Errorf("Expected disabled outcome, got %s (%v)", out.Status, out.Err)
	}
	if f.router.Ready() {
		t.Error("Expected disabled router not to be ready")
	}
}

func TestRoute_InvalidConfig(t *testing.T) {
	cfg := twoProviders()
	p := cfg.Providers["a"]
	p.Family = config.FamilyOpenAI
	p.DailyCap = 0
	cfg.Providers["a"] = p
	f := newFixture(t, cfg, nil)

	out := f.router.Route(context.Background(), Request{Text: "hello"})

	if out.Status != StatusConfigError {
		t.Fatalf("Expected %s, got %s", StatusConfigError, out.Status)
	}
	if !errors.Is(out.Err, ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", out.Err)
	}
	if got := len(f.router.Problems()); got != 2 {
		t.Errorf("Expected 2 problems (credential, daily cap), got %d: %v", got, f.router.Problems())
	}
	if f.client("b") != nil {
		t.Error("Expected no clients built for an invalid configuration")
	}
}

// ==== Redaction ====

func TestRoute_RedactsBeforeDispatch(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 1})

	out := f.router.Route(context.Background(), Request{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "You help with appeals."},
			{Role: providers.RoleUser, Content: "Mail jane@example.com about SSN 123-45-6789"},
		},
	})

	if out.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%v)", out.Status, out.Err)
	}
	if out.Redactions != 2 {
		t.Errorf("Expected 2 redactions, got %d", out.Redactions)
	}
	sent := f.client("a").LastCall().Messages[1].Content
	want := "Mail [REDACTED:EMAIL] about SSN [REDACTED:SSN]"
	if sent != want {
		t.Errorf("Expected provider to receive %q, got %q", want, sent)
	}
	if !strings.Contains(out.SentText, want) {
		t.Errorf("Expected SentText to contain redacted text, got %q", out.SentText)
	}
}

func TestRoute_RedactionDisabled(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.Redaction.Enabled = config.Bool(false)
	f := newFixture(t, cfg, map[string]float64{"a": 1})

	f.router.Route(context.Background(), Request{Text: "jane@example.com"})

	if got := f.client("a").LastCall().Messages[0].Content; got != "jane@example.com" {
		t.Errorf("Expected text unchanged, got %q", got)
	}
}

func TestRoute_RedactionFailureBlocksDispatch(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.Redaction.MaxInputBytes = 16
	f := newFixture(t, cfg, map[string]float64{"a": 1})

	out := f.router.Route(context.Background(), Request{Text: strings.Repeat("sensitive ", 10)})

	if out.Status != StatusRedactionFailed {
		t.Fatalf("Expected %s, got %s", StatusRedactionFailed, out.Status)
	}
	if !errors.Is(out.Err, ErrRedactionFailed) {
		t.Errorf("Expected ErrRedactionFailed, got %v", out.Err)
	}
	if f.client("a").Calls()+f.client("b").Calls() != 0 {
		t.Error("Expected no provider calls")
	}
	if out.SentText != "" {
		t.Errorf("Expected nothing sent, got %q", out.SentText)
	}
}

// ==== Admission control ====

func TestRoute_BudgetExhaustedFallsThrough(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 10, "b": 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.client("a").Script(mockproviders.Result{CostCents: 10})
		if out := f.router.Route(ctx, Request{Text: "hi"}); out.ProviderID != "a" {
			t.Fatalf("Request %d: expected a, got %s", i, out.ProviderID)
		}
	}

	out := f.router.Route(ctx, Request{Text: "hi"})
	if out.ProviderID != "b" {
		t.Errorf("Expected b once a is exhausted, got %s", out.ProviderID)
	}
	assertAttempts(t, out, "a:skipped:budget", "b:success")
	if used := f.used(t, "a"); used != 100 {
		t.Errorf("Expected a at its cap of 100, got %v", used)
	}

	f.clock.Advance(24 * time.Hour)
	if out := f.router.Route(ctx, Request{Text: "hi"}); out.ProviderID != "a" {
		t.Errorf("Expected a after window rollover, got %s", out.ProviderID)
	}
}

func TestRoute_CommitsActualCost(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 8})
	f.client("a").Script(mockproviders.Result{CostCents: 3.5})

	out := f.router.Route(context.Background(), Request{Text: "hi"})

	if out.CostCents != 3.5 {
		t.Errorf("Expected cost 3.5, got %v", out.CostCents)
	}
	if used := f.used(t, "a"); used != 3.5 {
		t.Errorf("Expected ledger to hold the actual cost 3.5, got %v", used)
	}
}

func TestRoute_MaxCostCeiling(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 8, "b": 3})

	out := f.router.Route(context.Background(), Request{Text: "hi", MaxCostCents: 5})

	if out.ProviderID != "b" {
		t.Errorf("Expected b, got %s", out.ProviderID)
	}
	assertAttempts(t, out, "a:skipped:max_cost", "b:success")
}

func TestRoute_ModelAndQualityFilters(t *testing.T) {
	cfg := twoProviders()
	b := cfg.Providers["b"]
	b.Models = []string{"mock-1", "mock-large"}
	b.QualityScore = 9
	cfg.Providers["b"] = b

	tests := []struct {
		name       string
		req        Request
		wantStatus Status
		wantServed string
		wantModel  string
	}{
		{name: "default model", req: Request{}, wantStatus: StatusSuccess, wantServed: "a", wantModel: "mock-1"},
		{name: "model only b lists", req: Request{Model: "mock-large"}, wantStatus: StatusSuccess, wantServed: "b", wantModel: "mock-large"},
		{name: "min quality", req: Request{MinQuality: 8}, wantStatus: StatusSuccess, wantServed: "b", wantModel: "mock-1"},
		{name: "unknown model", req: Request{Model: "gpt-nothing"}, wantStatus: StatusNoProviderAvailable},
		{name: "quality too high", req: Request{MinQuality: 9.5}, wantStatus: StatusNoProviderAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})
			tt.req.Text = "hi"

			out := f.router.Route(context.Background(), tt.req)

			if out.Status != tt.wantStatus {
				t.Fatalf("Expected %s, got %s (%v)", tt.wantStatus, out.Status, out.Err)
			}
			if out.ProviderID != tt.wantServed || out.Model != tt.wantModel {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantServed, tt.wantModel, out.ProviderID, out.Model)
			}
			if tt.wantModel != "" && f.client(tt.wantServed).LastCall().Model != tt.wantModel {
				t.Errorf("Expected model %s sent, got %s", tt.wantModel, f.client(tt.wantServed).LastCall().Model)
			}
		})
	}
}

func TestRoute_RateLimited(t *testing.T) {
	cfg := twoProviders()
	a := cfg.Providers["a"]
	a.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	cfg.Providers["a"] = a
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})
	f.client("a").Script(mockproviders.Result{CostCents: 1})

	first := f.router.Route(context.Background(), Request{Text: "hi"})
	second := f.router.Route(context.Background(), Request{Text: "hi"})

	if first.ProviderID != "a" {
		t.Errorf("Expected first request on a, got %s", first.ProviderID)
	}
	if second.ProviderID != "b" {
		t.Errorf("Expected second request on b, got %s", second.ProviderID)
	}
	assertAttempts(t, second, "a:skipped:rate_limited", "b:success")
	if used := f.used(t, "a"); used != 1 {
		t.Errorf("Expected no reservation for the rate limited request, got %v used", used)
	}
}

func TestRoute_DeniedCandidateKeepsRateToken(t *testing.T) {
	cfg := twoProviders()
	a := cfg.Providers["a"]
	a.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	cfg.Providers["a"] = a
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})

	hold, err := f.router.Ledger().Reserve("a", 100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	first := f.router.Route(context.Background(), Request{Text: "hi"})
	assertAttempts(t, first, "a:skipped:budget", "b:success")

	if err := f.router.Ledger().Release(hold); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	f.client("a").Script(mockproviders.Result{CostCents: 1})
	second := f.router.Route(context.Background(), Request{Text: "hi"})

	if second.ProviderID != "a" {
		t.Errorf("Expected a to keep its rate token after the budget skip, got %s", second.ProviderID)
	}
	assertAttempts(t, second, "a:success")
}

func TestRoute_GlobalCap(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.GlobalDailyCap = 10
	f := newFixture(t, cfg, map[string]float64{"a": 4, "b": 4})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.client("a").Script(mockproviders.Result{CostCents: 4})
		if out := f.router.Route(ctx, Request{Text: "hi"}); out.Status != StatusSuccess {
			t.Fatalf("Request %d: expected success, got %s", i, out.Status)
		}
	}

	out := f.router.Route(ctx, Request{Text: "hi"})
	if out.Status != StatusNoProviderAvailable {
		t.Errorf("Expected global cap to block every provider, got %s", out.Status)
	}
	assertAttempts(t, out, "a:skipped:budget", "b:skipped:budget")
}

// ==== Retries ====

func TestRoute_BackoffDoubles(t *testing.T) {
	cfg := twoProviders()
	a := cfg.Providers["a"]
	a.RetryAttempts = config.Int(4)
	a.RetryBackoff = 2 * time.Second
	cfg.Providers["a"] = a
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})
	f.client("a").FailNext(5, providers.FailureTimeout)

	f.router.Route(context.Background(), Request{Text: "hi"})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(f.delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, f.delays)
	}
	for i := range want {
		if f.delays[i] != want[i] {
			t.Errorf("Delay %d: expected %s, got %s", i, want[i], f.delays[i])
		}
	}
}

func TestRoute_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		wantCalls  int
		wantDelays []time.Duration
	}{
		{name: "honored", retryAfter: 300 * time.Millisecond, wantCalls: 2, wantDelays: []time.Duration{300 * time.Millisecond}},
		{name: "too long", retryAfter: 30 * time.Second, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoProviders(), map[string]float64{"a": 1, "b": 1})
			f.client("a").Script(mockproviders.Result{
				Err: &providers.RateLimitError{Provider: "a", RetryAfter: tt.retryAfter},
			})

			out := f.router.Route(context.Background(), Request{Text: "hi"})

			if out.Status != StatusSuccess {
				t.Fatalf("Expected success, got %s", out.Status)
			}
			if calls := f.client("a").Calls(); calls != tt.wantCalls {
				t.Errorf("Expected %d calls to a, got %d", tt.wantCalls, calls)
			}
			if len(f.delays) != len(tt.wantDelays) {
				t.Fatalf("Expected delays %v, got %v", tt.wantDelays, f.delays)
			}
			for i := range tt.wantDelays {
				if f.delays[i] != tt.wantDelays[i] {
					t.Errorf("Expected delay %s, got %s", tt.wantDelays[i], f.delays[i])
				}
			}
		})
	}
}

func TestRoute_ProviderTimeout(t *testing.T) {
	cfg := twoProviders()
	a := cfg.Providers["a"]
	a.Timeout = 20 * time.Millisecond
	a.RetryAttempts = config.Int(0)
	cfg.Providers["a"] = a
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})
	f.client("a").Script(mockproviders.Result{Delay: time.Second})

	out := f.router.Route(context.Background(), Request{Text: "hi"})

	if out.ProviderID != "b" {
		t.Fatalf("Expected fallback to b, got %s (%v)", out.ProviderID, out.Err)
	}
	assertAttempts(t, out, "a:failure:timeout", "b:success")
	var timeoutErr *providers.TimeoutError
	if !errors.As(out.Attempts[0].Err, &timeoutErr) {
		t.Errorf("Expected TimeoutError, got %v", out.Attempts[0].Err)
	}
}

// ==== Failure fee ====

func TestRoute_FailureFee(t *testing.T) {
	tests := []struct {
		name     string
		fee      float64
		estimate float64
		wantUsed float64
	}{
		{name: "no fee releases", fee: 0, estimate: 5, wantUsed: 0},
		{name: "fee below estimate", fee: 1, estimate: 5, wantUsed: 1},
		{name: "fee capped at estimate", fee: 9, estimate: 5, wantUsed: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := twoProviders()
			cfg.Router.FailureFee = tt.fee
			f := newFixture(t, cfg, map[string]float64{"a": tt.estimate, "b": 1})
			f.client("a").FailNext(1, providers.FailureAuth)
			f.client("b").Script(mockproviders.Result{CostCents: 2})

			out := f.router.Route(context.Background(), Request{Text: "hi"})

			if used := f.used(t, "a"); used != tt.wantUsed {
				t.Errorf("Expected a charged %v, got %v", tt.wantUsed, used)
			}
			if out.CostCents != tt.wantUsed+2 {
				t.Errorf("Expected outcome cost %v, got %v", tt.wantUsed+2, out.CostCents)
			}
		})
	}
}

// ==== Cancellation ====

func TestRoute_CancelDuringCall(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 5, "b": 5})
	f.client("a").Script(mockproviders.Result{Delay: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	out := f.router.Route(ctx, Request{Text: "hi"})

	if out.Status != StatusCanceled {
		t.Fatalf("Expected %s, got %s", StatusCanceled, out.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected the in-flight call to be abandoned, took %s", elapsed)
	}
	if used := f.used(t, "a"); used != 0 {
		t.Errorf("Expected reservation released, got %v used", used)
	}
	if f.client("b").Calls() != 0 {
		t.Error("Expected no fallback after cancellation")
	}
	snap := f.router.providers["a"].breaker.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.TrialInFlight {
		t.Errorf("Expected breaker untouched, got %+v", snap)
	}
	assertAttempts(t, out, "a:failure:canceled")
}

func TestRoute_AlreadyCanceled(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.router.Route(ctx, Request{Text: "hi"})

	if out.Status != StatusCanceled {
		t.Errorf("Expected %s, got %s", StatusCanceled, out.Status)
	}
	if f.client("a").Calls() != 0 {
		t.Error("Expected no calls")
	}
}

// ==== Circuit breaker integration ====

func TestRoute_BreakerOpensAfterThreshold(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.Breaker.FailureThreshold = 2
	a := cfg.Providers["a"]
	a.RetryAttempts = config.Int(0)
	cfg.Providers["a"] = a
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})
	f.client("a").FailNext(2, providers.FailureTransient)
	ctx := context.Background()

	f.router.Route(ctx, Request{Text: "hi"})
	if state := f.router.providers["a"].breaker.State(); state != breaker.Closed {
		t.Fatalf("Expected closed after 1 failure, got %s", state)
	}
	f.router.Route(ctx, Request{Text: "hi"})
	if state := f.router.providers["a"].breaker.State(); state != breaker.Open {
		t.Fatalf("Expected open after 2 failures, got %s", state)
	}

	out := f.router.Route(ctx, Request{Text: "hi"})
	assertAttempts(t, out, "a:skipped:breaker_open", "b:success")

	f.clock.Advance(config.DefaultBreakerResetTimeout)
	out = f.router.Route(ctx, Request{Text: "hi"})
	if out.ProviderID != "a" {
		t.Errorf("Expected trial call on a after reset timeout, got %s", out.ProviderID)
	}
	if state := f.router.providers["a"].breaker.State(); state != breaker.Closed {
		t.Errorf("Expected closed after successful trial, got %s", state)
	}
}

func TestRoute_SingleHalfOpenTrial(t *testing.T) {
	cfg := twoProviders()
	cfg.Router.Breaker.FailureThreshold = 1
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})

	a := f.router.providers["a"].breaker
	gen, _ := a.Allow()
	a.RecordFailure(gen)
	f.clock.Advance(config.DefaultBreakerResetTimeout)
	f.client("a").Script(mockproviders.Result{Delay: 300 * time.Millisecond})

	const n = 20
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			f.router.Route(context.Background(), Request{Text: "hi"})
		}()
	}
	close(start)
	wg.Wait()

	if calls := f.client("a").Calls(); calls != 1 {
		t.Errorf("Expected exactly 1 trial call to a, got %d", calls)
	}
	if calls := f.client("b").Calls(); calls != n-1 {
		t.Errorf("Expected %d calls to b, got %d", n-1, calls)
	}
	if used := f.used(t, "a"); used != 0 {
		t.Errorf("Expected denied trials to release, got %v used", used)
	}
}

// ==== Concurrency ====

func TestRoute_ConcurrentBudgetNeverOvershoots(t *testing.T) {
	cfg := twoProviders()
	b := cfg.Providers["b"]
	b.DailyCap = 1000
	cfg.Providers["b"] = b
	f := newFixture(t, cfg, map[string]float64{"a": 1, "b": 1})

	const n = 300
	for i := 0; i < n; i++ {
		f.client("a").Script(mockproviders.Result{CostCents: 1})
	}
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.router.Route(context.Background(), Request{Text: "hi"})
			results <- out.ProviderID
		}()
	}
	wg.Wait()
	close(results)

	served := map[string]int{}
	for id := range results {
		served[id]++
	}
	if served["a"] != 100 {
		t.Errorf("Expected a to serve exactly its 100 budget units, got %d", served["a"])
	}
	if served["b"] != n-100 {
		t.Errorf("Expected b to serve %d, got %d", n-100, served["b"])
	}
	if used := f.used(t, "a"); used > 100 {
		t.Errorf("Expected a never above cap, got %v", used)
	}
}

// ==== Accessors ====

func TestRouter_ProvidersAndStats(t *testing.T) {
	f := newFixture(t, twoProviders(), map[string]float64{"a": 15, "b": 1})
	f.router.Route(context.Background(), Request{Text: "hi"})

	statuses := f.router.Providers()
	if len(statuses) != 2 || statuses[0].ID != "a" || statuses[1].ID != "b" {
		t.Fatalf("Expected providers in priority order, got %+v", statuses)
	}
	if statuses[0].Family != config.FamilyMock {
		t.Errorf("Expected mock family, got %s", statuses[0].Family)
	}
	if statuses[1].Budget.Cap != 100 {
		t.Errorf("Expected cap 100, got %v", statuses[1].Budget.Cap)
	}

	stats := f.router.Stats()
	if stats.TotalRequests != 1 || stats.ByStatus[string(StatusSuccess)] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.SkipsByReason[SkipPerRequestCap] != 1 || stats.ServedByProvider["b"] != 1 {
		t.Errorf("Unexpected skip/served counters %+v", stats)
	}

	f.router.ResetStats()
	if got := f.router.Stats().TotalRequests; got != 0 {
		t.Errorf("Expected 0 after reset, got %d", got)
	}
}

func TestRouter_CloseClosesClients(t *testing.T) {
	f := newFixture(t, twoProviders(), nil)
	if err := f.router.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !f.client("a").Closed() || !f.client("b").Closed() {
		t.Error("Expected clients closed")
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
