// Package metrics exports routing measurements as Prometheus metrics.
//
// The Collector implements the router's Observer interface, so wiring it is
// a single option:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	r, _ := router.New(cfg, router.WithObserver(collector))
//	http.Handle("/metrics", collector.Handler())
//
// # Metrics
//
// With the default namespace "callisto" and subsystem "router":
//
//   - callisto_router_requests_total{status}
//   - callisto_router_request_duration_seconds{status}
//   - callisto_router_served_total{provider}
//   - callisto_router_attempts_total{provider,result,failure_kind}
//   - callisto_router_attempt_duration_seconds{provider}
//   - callisto_router_skips_total{provider,reason}
//   - callisto_router_breaker_state{provider} (0 closed, 1 half-open, 2 open)
//   - callisto_router_cost_cents_total{provider}
//   - callisto_router_budget_used_cents{provider}
//   - callisto_router_budget_cap_cents{provider}
//   - callisto_router_redactions_total{category}
//
// The global budget appears as provider "*". Provider, status and reason
// labels come from configuration and fixed sets, so cardinality is bounded
// by the number of configured providers.
package metrics
