package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/callisto/pkg/config"
)

// RedactionMetrics counts PII replacements by category.
type RedactionMetrics struct {
	redactions *prometheus.CounterVec
}

// NewRedactionMetrics creates and registers redaction metrics with the provided registry.
func NewRedactionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RedactionMetrics {
	rm := &RedactionMetrics{
		redactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "redactions_total",
				Help:      "Total number of PII matches replaced before dispatch",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(rm.redactions)
	return rm
}

// Record adds count replacements for category.
func (rm *RedactionMetrics) Record(category string, count int) {
	if count <= 0 {
		return
	}
	rm.redactions.WithLabelValues(category).Add(float64(count))
}
