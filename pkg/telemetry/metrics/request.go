package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/callisto/pkg/config"
)

// RouteMetrics tracks completed route calls.
type RouteMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	served   *prometheus.CounterVec
}

// NewRouteMetrics creates and registers route metrics with the provided registry.
func NewRouteMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RouteMetrics {
	rm := &RouteMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of routed requests by outcome status",
			},
			[]string{"status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "End to end routing latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"status"},
		),

		served: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "served_total",
				Help:      "Total number of requests served by each provider",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(rm.requests, rm.duration, rm.served)
	return rm
}

// Record records one completed route. providerID is empty when no
// provider served the request.
func (rm *RouteMetrics) Record(status, providerID string, latency time.Duration) {
	rm.requests.WithLabelValues(status).Inc()
	rm.duration.WithLabelValues(status).Observe(latency.Seconds())
	if providerID != "" {
		rm.served.WithLabelValues(providerID).Inc()
	}
}
