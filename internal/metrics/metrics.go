// Package metrics provides prometheus collectors for the aggregation
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	// FetchTotal counts upstream fetches by source and result
	// (success, transient, defunct, upstream_rate_limited, malformed).
	FetchTotal *prometheus.CounterVec
	// FetchDuration observes upstream fetch latency in seconds.
	FetchDuration prometheus.Histogram
	// InFlightFetches tracks concurrent upstream fetches.
	InFlightFetches prometheus.Gauge
	// FreshSources tracks how many sources are within their TTL.
	FreshSources prometheus.Gauge
	// ErrorSources tracks how many sources have a recorded error.
	ErrorSources prometheus.Gauge
	// RateLimitDenials counts inbound requests rejected by the limiter.
	RateLimitDenials prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discusswatch",
			Name:      "fetch_total",
			Help:      "Upstream fetches by source and result.",
		}, []string{"source", "result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "discusswatch",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		InFlightFetches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discusswatch",
			Name:      "inflight_fetches",
			Help:      "Concurrent upstream fetches.",
		}),
		FreshSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discusswatch",
			Name:      "fresh_sources",
			Help:      "Sources within their staleness TTL.",
		}),
		ErrorSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discusswatch",
			Name:      "error_sources",
			Help:      "Sources with a recorded fetch error.",
		}),
		RateLimitDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discusswatch",
			Name:      "rate_limit_denials_total",
			Help:      "Inbound requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDuration,
		m.InFlightFetches,
		m.FreshSources,
		m.ErrorSources,
		m.RateLimitDenials,
	)
	return m
}

// NewNop creates unregistered collectors for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
