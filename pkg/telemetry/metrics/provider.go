package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/callisto/pkg/config"
)

// Breaker state gauge values.
const (
	breakerClosed   = 0
	breakerHalfOpen = 1
	breakerOpen     = 2
)

// ProviderMetrics tracks calls, skips and breaker state per provider.
type ProviderMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	skips    *prometheus.CounterVec
	breaker  *prometheus.GaugeVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempts_total",
				Help:      "Total number of provider calls by result and failure kind",
			},
			[]string{"provider", "result", "failure_kind"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"provider"},
		),

		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "skips_total",
				Help:      "Total number of candidates skipped by admission control",
			},
			[]string{"provider", "reason"},
		),

		breaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.attempts, pm.latency, pm.skips, pm.breaker)
	return pm
}

// RecordAttempt records one provider call.
func (pm *ProviderMetrics) RecordAttempt(providerID, result, failureKind string, latency time.Duration) {
	pm.attempts.WithLabelValues(providerID, result, failureKind).Inc()
	pm.latency.WithLabelValues(providerID).Observe(latency.Seconds())
}

// RecordSkip records a skipped candidate.
func (pm *ProviderMetrics) RecordSkip(providerID, reason string) {
	pm.skips.WithLabelValues(providerID, reason).Inc()
}

// SetBreakerState updates the breaker gauge. Unknown states are ignored.
func (pm *ProviderMetrics) SetBreakerState(providerID, state string) {
	var v float64
	switch state {
	case "closed":
		v = breakerClosed
	case "half_open":
		v = breakerHalfOpen
	case "open":
		v = breakerOpen
	default:
		return
	}
	pm.breaker.WithLabelValues(providerID).Set(v)
}
