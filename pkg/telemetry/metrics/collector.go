package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/callisto/pkg/config"
)

// Collector owns every routing metric and implements the router's
// Observer interface. When metrics are disabled all methods are no-ops.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	routeMetrics     *RouteMetrics
	providerMetrics  *ProviderMetrics
	budgetMetrics    *BudgetMetrics
	redactionMetrics *RedactionMetrics
}

// NewCollector creates a collector registering into registry. If registry
// is nil a new one is created with the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = config.DefaultLatencyBuckets
	}

	return &Collector{
		config:           cfg,
		registry:         registry,
		routeMetrics:     NewRouteMetrics(cfg, registry),
		providerMetrics:  NewProviderMetrics(cfg, registry),
		budgetMetrics:    NewBudgetMetrics(cfg, registry),
		redactionMetrics: NewRedactionMetrics(cfg, registry),
	}
}

// ObserveRoute records a completed route.
func (c *Collector) ObserveRoute(status, providerID string, latency time.Duration, costCents float64) {
	if !c.config.Enabled {
		return
	}
	c.routeMetrics.Record(status, providerID, latency)
	if providerID != "" {
		c.budgetMetrics.RecordCost(providerID, costCents)
	}
}

// ObserveAttempt records one provider call.
func (c *Collector) ObserveAttempt(providerID, result, failureKind string, latency time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.RecordAttempt(providerID, result, failureKind, latency)
}

// ObserveSkip records a candidate skipped by admission control.
func (c *Collector) ObserveSkip(providerID, reason string) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.RecordSkip(providerID, reason)
}

// ObserveBreakerState records a breaker transition.
func (c *Collector) ObserveBreakerState(providerID, state string) {
	if !c.config.Enabled {
		return
	}
	c.providerMetrics.SetBreakerState(providerID, state)
}

// ObserveBudget records the usage of a ledger entry.
func (c *Collector) ObserveBudget(providerID string, usedCents, capCents float64) {
	if !c.config.Enabled {
		return
	}
	c.budgetMetrics.SetBudget(providerID, usedCents, capCents)
}

// ObserveRedactions records replaced PII matches.
func (c *Collector) ObserveRedactions(category string, count int) {
	if !c.config.Enabled {
		return
	}
	c.redactionMetrics.Record(category, count)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
