// Package metrics defines the Prometheus metric collectors used by the query
// engine and the search HTTP shell, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and turns
// every Observe/Inc helper into a no-op.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IndexEntries         prometheus.Gauge
	IndexPartitions      prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	PartitionLoadsTotal  *prometheus.CounterVec
	PartitionCacheHits   prometheus.Counter
	LookupsDiscarded     prometheus.Counter
	SessionReloadsTotal  *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docindex_entries",
				Help: "Number of entries in the loaded index.",
			},
		),
		IndexPartitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docindex_partitions",
				Help: "Number of bucket partitions in the loaded index.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, degraded, cancelled, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		PartitionLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_partition_loads_total",
				Help: "Partition loads by status (ok, missing).",
			},
			[]string{"status"},
		),
		PartitionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_partition_cache_hits_total",
				Help: "Partition lookups served from the session cache.",
			},
		),
		LookupsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_lookups_discarded_total",
				Help: "Typeahead lookups superseded by a newer keystroke before delivery.",
			},
		),
		SessionReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_session_reloads_total",
				Help: "Search session reloads by trigger and status.",
			},
			[]string{"trigger", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IndexEntries,
		m.IndexPartitions,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.PartitionLoadsTotal,
		m.PartitionCacheHits,
		m.LookupsDiscarded,
		m.SessionReloadsTotal,
	)

	return m
}

// IndexShape records the size of the current index.
func (m *Metrics) IndexShape(entries, partitions int) {
	if m == nil {
		return
	}
	m.IndexEntries.Set(float64(entries))
	m.IndexPartitions.Set(float64(partitions))
}

// ObserveQuery records a completed search.
func (m *Metrics) ObserveQuery(resultType string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.Observe(seconds)
	m.SearchResultsCount.Observe(float64(results))
}

// PartitionLoad counts a partition load attempt.
func (m *Metrics) PartitionLoad(status string) {
	if m == nil {
		return
	}
	m.PartitionLoadsTotal.WithLabelValues(status).Inc()
}

// PartitionCacheHit counts a lookup served from cache.
func (m *Metrics) PartitionCacheHit() {
	if m == nil {
		return
	}
	m.PartitionCacheHits.Inc()
}

// LookupDiscarded counts a superseded typeahead lookup.
func (m *Metrics) LookupDiscarded() {
	if m == nil {
		return
	}
	m.LookupsDiscarded.Inc()
}

// SessionReload counts a session reload.
func (m *Metrics) SessionReload(trigger, status string) {
	if m == nil {
		return
	}
	m.SessionReloadsTotal.WithLabelValues(trigger, status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
