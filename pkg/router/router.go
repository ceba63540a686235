package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/breaker"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/providerfactory"
	"mercator-hq/callisto/pkg/providers"
	"mercator-hq/callisto/pkg/redact"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// provider is the per-provider state owned by a Router.
type provider struct {
	id      string
	cfg     config.ProviderConfig
	entry   *providerfactory.Entry
	breaker *breaker.Breaker
	limiter *rate.Limiter
}

// model returns the model to request of p: the preferred model if p lists
// it, otherwise p's first model when no preference was given.
func (p *provider) model(preferred string) (string, bool) {
	if preferred == "" {
		if len(p.cfg.Models) == 0 {
			return "", false
		}
		return p.cfg.Models[0], true
	}
	for _, m := range p.cfg.Models {
		if m == preferred {
			return m, true
		}
	}
	return "", false
}

// Router is a configured dispatcher instance. It is safe for concurrent use.
type Router struct {
	cfg        *config.Config
	problems   []string
	logger     *slog.Logger
	baseLogger *slog.Logger

	redactor   *redact.Redactor
	categories []redact.Category

	registry  *providerfactory.Registry
	manager   *providerfactory.Manager
	ledger    *ledger.Ledger
	providers map[string]*provider
	order     []*provider

	sink     audit.Sink
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	stats    *atomicStats
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the parent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.baseLogger = logger
		}
	}
}

// WithAuditSink sets the sink that receives attempt events.
func WithAuditSink(sink audit.Sink) Option {
	return func(r *Router) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithTracer sets the tracer for route and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithClock sets the time source of the ledger and breakers.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistry sets the provider family registry.
func WithRegistry(reg *providerfactory.Registry) Option {
	return func(r *Router) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithLedger uses an existing ledger instead of building one. The ledger is
// reconfigured with this router's caps, so a ledger shared with a replaced
// router keeps every reservation and window it holds.
func WithLedger(l *ledger.Ledger) Option {
	return func(r *Router) {
		if l != nil {
			r.ledger = l
		}
	}
}

// New builds a router from cfg. A configuration that fails validation does
// not make New fail: the router is returned and answers every Route with
// StatusConfigError until rebuilt. New only fails for a nil configuration.
func New(cfg *config.Config, opts ...Option) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("router config cannot be nil")
	}

	r := &Router{
		cfg:        cfg,
		baseLogger: slog.Default(),
		sink:       audit.NopSink{},
		observer:   nopObserver{},
		tracer:     otel.Tracer(tracing.InstrumentationName),
		now:        time.Now,
		sleep:      sleepContext,
		stats:      newAtomicStats(),
		providers:  make(map[string]*provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.baseLogger.With("component", "router")

	if !cfg.Router.IsEnabled() {
		r.logger.Warn("router disabled, all requests will be rejected")
		return r, nil
	}

	r.problems = config.Problems(cfg)
	if len(r.problems) > 0 {
		r.logger.Error("router configuration invalid, refusing traffic",
			"problem_count", len(r.problems),
			"problems", r.problems,
		)
		return r, nil
	}

	categories, err := redact.ParseCategories(cfg.Router.Redaction.Categories)
	if err != nil {
		r.problems = append(r.problems, err.Error())
		return r, nil
	}
	r.categories = categories
	r.redactor = redact.New(redact.WithMaxInputBytes(cfg.Router.Redaction.MaxInputBytes))

	r.manager = providerfactory.NewManager(r.registry, r.baseLogger)
	if err := r.manager.LoadFromConfig(cfg); err != nil {
		r.problems = append(r.problems, err.Error())
		r.logger.Error("failed to build provider clients, refusing traffic", "error", err)
		return r, nil
	}

	caps := make(map[string]float64)
	for _, id := range r.manager.IDs() {
		entry, _ := r.manager.Get(id)
		p := &provider{
			id:    id,
			cfg:   entry.Config,
			entry: entry,
			breaker: breaker.New(id, r.breakerConfig(entry.Config),
				breaker.WithClock(r.now),
				breaker.WithStateChange(r.onBreakerChange),
			),
		}
		if rl := entry.Config.RateLimit; rl.RequestsPerSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1))
		}
		r.providers[id] = p
		r.order = append(r.order, p)
		caps[id] = entry.Config.DailyCap
	}
	sort.SliceStable(r.order, func(i, j int) bool {
		if r.order[i].cfg.Priority != r.order[j].cfg.Priority {
			return r.order[i].cfg.Priority < r.order[j].cfg.Priority
		}
		return r.order[i].id < r.order[j].id
	})

	lc := ledger.Config{
		Window:    cfg.Router.Window,
		Caps:      caps,
		GlobalCap: cfg.Router.GlobalDailyCap,
	}
	if r.ledger == nil {
		r.ledger = ledger.New(lc, ledger.WithClock(r.now), ledger.WithLogger(r.baseLogger))
	} else if err := r.ledger.Reconfigure(lc); err != nil {
		r.problems = append(r.problems, err.Error())
		r.logger.Error("shared ledger rejected the configuration, refusing traffic", "error", err)
		return r, nil
	}

	r.logger.Info("router ready",
		"providers", len(r.order),
		"redaction", cfg.Router.Redaction.IsEnabled(),
		"global_daily_cap", cfg.Router.GlobalDailyCap,
	)
	return r, nil
}

func (r *Router) breakerConfig(p config.ProviderConfig) breaker.Config {
	bc := breaker.Config{
		FailureThreshold: r.cfg.Router.Breaker.FailureThreshold,
		ResetTimeout:     r.cfg.Router.Breaker.ResetTimeout,
	}
	if p.Breaker.FailureThreshold > 0 {
		bc.FailureThreshold = p.Breaker.FailureThreshold
	}
	if p.Breaker.ResetTimeout > 0 {
		bc.ResetTimeout = p.Breaker.ResetTimeout
	}
	return bc
}

func (r *Router) onBreakerChange(id string, from, to breaker.State) {
	level := slog.LevelInfo
	if to == breaker.Open {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "circuit breaker state changed",
		"provider", id,
		"from", from.String(),
		"to", to.String(),
	)
	r.observer.ObserveBreakerState(id, to.String())
}

// Route dispatches one request and always returns a non-nil outcome.
func (r *Router) Route(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	out := &Outcome{RequestID: req.ID}
	r.stats.totalRequests.Add(1)

	ctx, span := r.tracer.Start(ctx, "router.Route",
		trace.WithAttributes(tracing.RouteAttributes(req.ID, req.Model)...))
	defer func() {
		out.Latency = time.Since(start)
		increment(&r.stats.byStatus, string(out.Status))
		r.observer.ObserveRoute(string(out.Status), out.ProviderID, out.Latency, out.CostCents)

		span.SetAttributes(tracing.OutcomeAttributes(
			string(out.Status), out.ProviderID, out.CostCents, len(out.Attempts))...)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, string(out.Status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	switch {
	case !r.cfg.Router.IsEnabled():
		out.Status, out.Err = StatusDisabled, ErrRouterDisabled
		return out
	case len(r.problems) > 0:
		cfgErr := &ConfigError{Problems: r.problems, NoProviders: r.enabledCount() == 0}
		out.Status, out.Err = StatusConfigError, cfgErr
		if cfgErr.NoProviders {
			out.Status = StatusNoProviderAvailable
		}
		return out
	}

	messages, redactions, err := r.redactMessages(req.messages())
	if err != nil {
		r.logger.Warn("redaction failed, request not dispatched",
			"request_id", req.ID,
			"error", err,
		)
		out.Status, out.Err = StatusRedactionFailed, fmt.Errorf("%w: %w", ErrRedactionFailed, err)
		return out
	}
	out.Redactions = redactions
	out.SentText = joinContents(messages)

	exhausted := &ExhaustedError{Skipped: make(map[string]string)}
	for _, p := range r.order {
		if err := ctx.Err(); err != nil {
			out.Status, out.Err = StatusCanceled, err
			return out
		}

		model, ok := p.model(req.Model)
		if !ok {
			continue
		}
		if req.MinQuality > 0 && p.cfg.QualityScore < req.MinQuality {
			continue
		}

		if len(exhausted.Attempted) > 0 {
			r.stats.fallbacks.Add(1)
		}

		res := r.dispatch(ctx, req, p, model, messages, out)
		switch res.kind {
		case kindSuccess:
			out.Status = StatusSuccess
			out.ProviderID = p.id
			out.Model = model
			out.Response = res.response
			r.logDecision("request routed",
				"request_id", req.ID,
				"provider", p.id,
				"model", model,
				"cost_cents", out.CostCents,
				"attempts", len(out.Attempts),
			)
			return out
		case kindCanceled:
			out.Status, out.Err = StatusCanceled, res.err
			return out
		case kindSkipped:
			exhausted.Skipped[p.id] = res.reason
		case kindFailed:
			exhausted.Attempted = append(exhausted.Attempted, p.id)
			exhausted.LastErr = res.err
		}
	}

	out.Status, out.Err = StatusNoProviderAvailable, exhausted
	r.logger.Warn("no provider available",
		"request_id", req.ID,
		"attempted", exhausted.Attempted,
		"skipped", len(exhausted.Skipped),
	)
	return out
}

func (r *Router) redactMessages(messages []providers.Message) ([]providers.Message, int, error) {
	if !r.cfg.Router.Redaction.IsEnabled() {
		return messages, 0, nil
	}

	total := 0
	for i := range messages {
		text, stats, err := r.redactor.RedactWithStats(messages[i].Content, r.categories)
		if err != nil {
			return nil, 0, err
		}
		messages[i].Content = text
		for category, n := range stats {
			r.observer.ObserveRedactions(string(category), n)
			total += n
		}
	}
	return messages, total, nil
}

func (r *Router) logDecision(msg string, args ...any) {
	level := slog.LevelDebug
	if r.cfg.Router.Logging.Verbose {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, msg, args...)
}

func (r *Router) enabledCount() int {
	n := 0
	for _, p := range r.cfg.Providers {
		if p.Enabled {
			n++
		}
	}
	return n
}

// Problems returns the configuration problems recorded at construction.
func (r *Router) Problems() []string {
	out := make([]string, len(r.problems))
	copy(out, r.problems)
	return out
}

// Ready reports whether the router accepts traffic.
func (r *Router) Ready() bool {
	return r.cfg.Router.IsEnabled() && len(r.problems) == 0
}

// Ledger returns the budget ledger. It is nil for a router that is not
// ready unless one was passed with WithLedger.
func (r *Router) Ledger() *ledger.Ledger {
	return r.ledger
}

// ProviderStatus is the live state of one provider.
type ProviderStatus struct {
	ID       string           `json:"id"`
	Family   string           `json:"family"`
	Priority int              `json:"priority"`
	Breaker  breaker.Snapshot `json:"breaker"`
	Budget   ledger.Status    `json:"budget"`
}

// Providers returns the state of every provider in candidate order.
func (r *Router) Providers() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.order))
	for _, p := range r.order {
		s := ProviderStatus{
			ID:       p.id,
			Family:   p.entry.Family.Name(),
			Priority: p.cfg.Priority,
			Breaker:  p.breaker.Snapshot(),
		}
		if r.ledger != nil {
			s.Budget, _ = r.ledger.Status(p.id)
		}
		out = append(out, s)
	}
	return out
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}

// ResetStats zeroes the routing counters.
func (r *Router) ResetStats() {
	r.stats.reset()
}

// Close releases provider clients.
func (r *Router) Close() error {
	if r.manager == nil {
		return nil
	}
	return r.manager.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
