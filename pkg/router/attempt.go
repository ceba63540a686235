package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mercator-hq/callisto/pkg/audit"
	"mercator-hq/callisto/pkg/breaker"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/providers"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// maxBackoff caps the delay between retries. A provider asking for a longer
// Retry-After is not retried within the request.
const maxBackoff = 5 * time.Second

type resultKind int

const (
	kindSkipped resultKind = iota
	kindFailed
	kindSuccess
	kindCanceled
)

// providerResult is how one candidate ended.
type providerResult struct {
	kind     resultKind
	reason   string
	response *providers.Response
	err      error
}

// dispatch runs admission control for one candidate and, if admitted, the
// call with its retries. Admission order: breaker state, estimate against
// the per-request cap and the request ceiling, rate limiter, budget
// reservation, breaker claim.
func (r *Router) dispatch(ctx context.Context, req Request, p *provider, model string, messages []providers.Message, out *Outcome) providerResult {
	skip := func(reason string, estimate float64) providerResult {
		r.record(ctx, out, AttemptRecord{
			ProviderID:    p.id,
			Model:         model,
			Result:        string(audit.ResultSkipped),
			Reason:        reason,
			EstimateCents: estimate,
		})
		increment(&r.stats.skips, reason)
		r.observer.ObserveSkip(p.id, reason)
		r.logDecision("candidate skipped",
			"request_id", out.RequestID,
			"provider", p.id,
			"reason", reason,
			"estimate_cents", estimate,
		)
		return providerResult{kind: kindSkipped, reason: reason}
	}

	if p.breaker.State() == breaker.Open {
		return skip(SkipBreakerOpen, 0)
	}

	estimate := p.entry.Family.Estimate(p.entry.ClientConfig(), providers.Estimation{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if p.cfg.PerRequestCap > 0 && estimate > p.cfg.PerRequestCap {
		return skip(SkipPerRequestCap, estimate)
	}
	if req.MaxCostCents > 0 && estimate > req.MaxCostCents {
		return skip(SkipMaxCost, estimate)
	}
	// The rate token is taken as a cancelable reservation and handed back
	// when a later admission step turns the candidate away. CancelAt only
	// restores tokens when given the reservation time itself.
	var (
		token    *rate.Reservation
		reserved time.Time
	)
	if p.limiter != nil {
		reserved = r.now()
		token = p.limiter.ReserveN(reserved, 1)
		if !token.OK() || token.DelayFrom(reserved) > 0 {
			token.CancelAt(reserved)
			return skip(SkipRateLimited, estimate)
		}
	}
	refund := func() {
		if token != nil {
			token.CancelAt(reserved)
		}
	}

	res, err := r.ledger.Reserve(p.id, estimate)
	if err != nil {
		refund()
		if !errors.Is(err, ledger.ErrBudgetExceeded) {
			r.logger.Error("budget reservation failed", "provider", p.id, "error", err)
		}
		return skip(SkipBudget, estimate)
	}

	gen, err := p.breaker.Allow()
	if err != nil {
		refund()
		r.release(res)
		return skip(SkipBreakerOpen, estimate)
	}

	return r.call(ctx, req, p, model, messages, res, gen, out)
}

// call invokes the provider, retrying retryable failures. It settles the
// reservation and the breaker claim exactly once on every path.
func (r *Router) call(ctx context.Context, req Request, p *provider, model string, messages []providers.Message, res *ledger.Reservation, gen uint64, out *Outcome) providerResult {
	c := providers.Call{Model: model, Messages: messages, MaxTokens: req.MaxTokens}
	maxAttempts := 1 + p.cfg.Retries()

	rec := AttemptRecord{
		ProviderID:    p.id,
		Model:         model,
		EstimateCents: res.Estimate,
	}

	canceled := func(err error, latency time.Duration) providerResult {
		fee := r.settleFailure(res)
		p.breaker.Cancel(gen)
		out.CostCents += fee

		rec.Result = string(audit.ResultFailure)
		rec.FailureKind = providers.FailureCanceled
		rec.CostCents = fee
		rec.Latency = latency
		rec.Err = err
		r.record(ctx, out, rec)

		r.logger.Info("request canceled during provider call",
			"request_id", out.RequestID,
			"provider", p.id,
			"attempt", rec.Attempt,
		)
		return providerResult{kind: kindCanceled, err: ctx.Err()}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempt = attempt
		r.stats.calls.Add(1)
		if attempt > 1 {
			r.stats.retries.Add(1)
		}

		resp, latency, err := r.invoke(ctx, p, c, attempt)

		if ctx.Err() != nil {
			if err == nil {
				// The response arrived but the caller is gone: bill it.
				r.commit(res, resp.CostCents)
				p.breaker.RecordSuccess(gen)
				out.CostCents += resp.CostCents

				rec.Result = string(audit.ResultSuccess)
				rec.CostCents = resp.CostCents
				rec.Latency = latency
				r.record(ctx, out, rec)
				return providerResult{kind: kindCanceled, err: ctx.Err()}
			}
			return canceled(ctx.Err(), latency)
		}

		if err == nil {
			r.commit(res, resp.CostCents)
			p.breaker.RecordSuccess(gen)
			out.CostCents += resp.CostCents
			increment(&r.stats.served, p.id)

			rec.Result = string(audit.ResultSuccess)
			rec.CostCents = resp.CostCents
			rec.Latency = latency
			r.record(ctx, out, rec)
			return providerResult{kind: kindSuccess, response: resp}
		}

		lastErr = err
		kind := p.entry.Family.Classify(err)

		final := !kind.Retryable() || attempt == maxAttempts
		var delay time.Duration
		if !final {
			delay = backoff(p.cfg.RetryBackoff, attempt)
			if after := providers.RetryAfter(err); after > 0 {
				if after > maxBackoff {
					final = true
				} else if after > delay {
					delay = after
				}
			}
		}

		rec.Result = string(audit.ResultFailure)
		rec.FailureKind = kind
		rec.Latency = latency
		rec.Err = err
		rec.CostCents = 0
		if final {
			rec.CostCents = r.settleFailure(res)
			out.CostCents += rec.CostCents
			p.breaker.RecordFailure(gen)
		}
		r.record(ctx, out, rec)

		r.logger.Warn("provider call failed",
			"request_id", out.RequestID,
			"provider", p.id,
			"model", model,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"failure_kind", kind.String(),
			"retrying", !final,
			"error", err,
		)

		if final {
			break
		}
		if err := r.sleep(ctx, delay); err != nil {
			return canceled(err, 0)
		}
	}

	return providerResult{kind: kindFailed, err: lastErr}
}

type invokeResult struct {
	resp *providers.Response
	err  error
}

// invoke makes one call bounded by the provider timeout. The call runs in
// its own goroutine so a client that ignores its context is abandoned when
// the deadline passes or the caller cancels; its late result is discarded.
func (r *Router) invoke(ctx context.Context, p *provider, c providers.Call, attempt int) (*providers.Response, time.Duration, error) {
	ctx, span := r.tracer.Start(ctx, "router.Attempt",
		trace.WithAttributes(tracing.AttemptAttributes(p.id, c.Model, attempt)...))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		resp, err := p.entry.Client.Invoke(callCtx, c)
		done <- invokeResult{resp: resp, err: err}
	}()

	var result invokeResult
	select {
	case result = <-done:
	case <-callCtx.Done():
		result.err = callCtx.Err()
	}
	latency := time.Since(start)

	if result.err == nil && result.resp == nil {
		result.err = fmt.Errorf("%s: %w", p.id, providers.ErrEmptyResponse)
	}
	if result.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		result.err = &providers.TimeoutError{Provider: p.id, Timeout: p.cfg.Timeout}
	}

	outcome := string(audit.ResultSuccess)
	kind := ""
	if result.err != nil {
		outcome = string(audit.ResultFailure)
		kind = p.entry.Family.Classify(result.err).String()
		span.RecordError(result.err)
		span.SetStatus(codes.Error, kind)
	} else {
		span.SetAttributes(
			tracing.AttrTokens.Int(result.resp.Usage.TotalTokens),
			tracing.AttrCostCents.Float64(result.resp.CostCents),
		)
	}
	r.observer.ObserveAttempt(p.id, outcome, kind, latency)

	return result.resp, latency, result.err
}

// settleFailure settles the reservation of a provider that did not produce
// a response. With a failure fee configured the smaller of the fee and the
// estimate is committed; otherwise the reservation is released. It returns
// the amount charged.
func (r *Router) settleFailure(res *ledger.Reservation) float64 {
	if fee := r.cfg.Router.FailureFee; fee > 0 {
		charge := min(fee, res.Estimate)
		r.commit(res, charge)
		return charge
	}
	r.release(res)
	return 0
}

func (r *Router) commit(res *ledger.Reservation, actual float64) {
	if err := r.ledger.Commit(res, actual); err != nil {
		r.logger.Error("failed to commit reservation",
			"provider", res.ProviderID,
			"reservation_id", res.ID,
			"error", err,
		)
	}
	r.observeBudget(res.ProviderID)
}

func (r *Router) release(res *ledger.Reservation) {
	if err := r.ledger.Release(res); err != nil {
		r.logger.Error("failed to release reservation",
			"provider", res.ProviderID,
			"reservation_id", res.ID,
			"error", err,
		)
	}
	r.observeBudget(res.ProviderID)
}

func (r *Router) observeBudget(providerID string) {
	if s, err := r.ledger.Status(providerID); err == nil {
		r.observer.ObserveBudget(providerID, s.Used, s.Cap)
	}
	if s, ok := r.ledger.GlobalStatus(); ok {
		r.observer.ObserveBudget(ledger.GlobalID, s.Used, s.Cap)
	}
}

// record appends the attempt to the outcome and sends the sanitized audit
// event. The sink sees no request or response text.
func (r *Router) record(ctx context.Context, out *Outcome, rec AttemptRecord) {
	out.Attempts = append(out.Attempts, rec)
	r.sink.Record(context.WithoutCancel(ctx), audit.Event{
		ID:            uuid.NewString(),
		RequestID:     out.RequestID,
		Time:          r.now(),
		ProviderID:    rec.ProviderID,
		Model:         rec.Model,
		Attempt:       rec.Attempt,
		Result:        audit.Result(rec.Result),
		Reason:        rec.Reason,
		FailureKind:   string(rec.FailureKind),
		CostCents:     rec.CostCents,
		EstimateCents: rec.EstimateCents,
		Latency:       rec.Latency,
	})
}

// backoff returns the delay after the given failed attempt: base doubled
// per attempt, capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = config.DefaultRetryBackoff
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}
