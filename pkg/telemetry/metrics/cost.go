package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/callisto/pkg/config"
)

// BudgetMetrics tracks spend and budget utilization. Amounts are in cents.
type BudgetMetrics struct {
	cost *prometheus.CounterVec
	used *prometheus.GaugeVec
	cap  *prometheus.GaugeVec
}

// NewBudgetMetrics creates and registers budget metrics with the provided registry.
func NewBudgetMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BudgetMetrics {
	bm := &BudgetMetrics{
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_cents_total",
				Help:      "Total cost committed in cents by serving provider",
			},
			[]string{"provider"},
		),

		used: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_used_cents",
				Help:      "Cents consumed in the current budget window, including reservations",
			},
			[]string{"provider"},
		),

		cap: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_cap_cents",
				Help:      "Budget cap in cents per window",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(bm.cost, bm.used, bm.cap)
	return bm
}

// RecordCost adds a committed request cost.
func (bm *BudgetMetrics) RecordCost(providerID string, cents float64) {
	if cents <= 0 {
		return
	}
	bm.cost.WithLabelValues(providerID).Add(cents)
}

// SetBudget updates the usage gauges of one ledger entry.
func (bm *BudgetMetrics) SetBudget(providerID string, usedCents, capCents float64) {
	bm.used.WithLabelValues(providerID).Set(usedCents)
	bm.cap.WithLabelValues(providerID).Set(capCents)
}
