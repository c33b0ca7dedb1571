// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the service emits.
type Collector struct {
	registry *prometheus.Registry

	// Request metrics
	RequestDuration *prometheus.HistogramVec
	RequestCount    *prometheus.CounterVec

	// Context assembly metrics
	AssemblyDuration prometheus.Histogram
	AssemblyTierSize *prometheus.HistogramVec
	AssemblyTokens   prometheus.Histogram

	// Streaming metrics
	ActiveSessions prometheus.Gauge
	StreamEvents   *prometheus.CounterVec

	// Merge metrics
	Merges *prometheus.CounterVec

	// Memory metrics
	MemorySearches *prometheus.CounterVec

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewCollector creates and registers the collector on its own
// registry, so tests can build collectors without global state
// collisions.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		AssemblyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "context_assembly_duration_seconds",
				Help:    "Context assembly duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		AssemblyTierSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "context_assembly_tier_items",
				Help:    "Items contributed per assembly tier",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"tier"},
		),
		AssemblyTokens: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "context_assembly_estimated_tokens",
				Help:    "Estimated token size of assembled context",
				Buckets: []float64{500, 1000, 2000, 4000, 6000, 8000, 12000},
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stream_sessions_active",
				Help: "Currently registered streaming sessions",
			},
		),
		StreamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_events_total",
				Help: "Streaming events emitted",
			},
			[]string{"type"},
		),

		Merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subchat_merges_total",
				Help: "Sub-chat merge attempts",
			},
			[]string{"outcome"},
		),

		MemorySearches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_searches_total",
				Help: "Memory index searches",
			},
			[]string{"mode"},
		),

		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_provider_latency_seconds",
				Help:    "LLM provider latency in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation", "model"},
		),
		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_provider_errors_total",
				Help: "LLM provider call failures",
			},
			[]string{"operation"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total cache misses",
			},
			[]string{"cache_type"},
		),
	}

	registry.MustRegister(
		c.RequestDuration,
		c.RequestCount,
		c.AssemblyDuration,
		c.AssemblyTierSize,
		c.AssemblyTokens,
		c.ActiveSessions,
		c.StreamEvents,
		c.Merges,
		c.MemorySearches,
		c.ProviderLatency,
		c.ProviderErrors,
		c.CacheHits,
		c.CacheMisses,
	)

	return c
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAssembly records one assembly call's tier contributions.
func (c *Collector) ObserveAssembly(durationSeconds float64, recent, semantic, summaries, cross, estimatedTokens int) {
	c.AssemblyDuration.Observe(durationSeconds)
	c.AssemblyTierSize.WithLabelValues("recent").Observe(float64(recent))
	c.AssemblyTierSize.WithLabelValues("semantic").Observe(float64(semantic))
	c.AssemblyTierSize.WithLabelValues("summaries").Observe(float64(summaries))
	c.AssemblyTierSize.WithLabelValues("cross_conversation").Observe(float64(cross))
	c.AssemblyTokens.Observe(float64(estimatedTokens))
}
