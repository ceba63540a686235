// Package router dispatches model requests across configured providers
// under budget, rate and failure-isolation constraints.
//
// A Router is built once from a validated configuration and owns one
// ledger entry, circuit breaker, optional rate limiter and client per
// enabled provider. Route is the only request entry point:
//
//	r, err := router.New(cfg, router.WithLogger(logger), router.WithAuditSink(sink))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	outcome := r.Route(ctx, router.Request{Text: "Summarize this appeal letter"})
//	if outcome.Status != router.StatusSuccess {
//	    return outcome.Err
//	}
//
// # Dispatch
//
// Route redacts the request, orders the enabled providers whose breaker is
// not open by priority, and for each candidate runs admission control:
// cost estimate against the per-request cap and the request ceiling, the
// local rate limiter, a budget reservation, and the breaker. Admitted
// candidates are called with the provider timeout and retried on transient
// failures with exponential backoff. The first success commits its actual
// cost and ends the request. A provider that fails releases its
// reservation, counts one breaker failure and hands over to the next
// candidate. When no candidate succeeds the outcome is
// StatusNoProviderAvailable.
//
// Every attempt and every admission skip is sent to the audit sink without
// prompt or response text.
package router
