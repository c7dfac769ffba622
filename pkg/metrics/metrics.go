// Package metrics defines the Prometheus collectors for the build pipeline
// and the query evaluator and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors together with the registry they
// are registered on.
type Metrics struct {
	Registry *prometheus.Registry

	FilesDiscoveredTotal  prometheus.Counter
	FilesIndexedTotal     prometheus.Counter
	FilesSkippedTotal     *prometheus.CounterVec
	PostingsAppendedTotal prometheus.Counter
	PostingWriteFailures  prometheus.Counter
	DocumentReadFailures  prometheus.Counter
	QueueDepth            prometheus.Gauge
	WorkersActive         prometheus.Gauge
	BuildDuration         prometheus.Histogram
	IndexKeys             prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         prometheus.Histogram
	SearchResultsCount    prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
}

// New creates all collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FilesDiscoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_files_discovered_total",
				Help: "Regular files emitted by the traversal producer.",
			},
		),
		FilesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_files_indexed_total",
				Help: "Documents tokenized and written to the posting store.",
			},
		),
		FilesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_files_skipped_total",
				Help: "Entries skipped during a build by reason (traversal, ignored, read_error).",
			},
			[]string{"reason"},
		),
		PostingsAppendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_postings_appended_total",
				Help: "Posting lines appended to the index root.",
			},
		),
		PostingWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_posting_write_failures_total",
				Help: "Posting appends that failed and were dropped with a warning.",
			},
		),
		DocumentReadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_document_read_failures_total",
				Help: "Documents that could not be read at tokenization time.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_queue_depth",
				Help: "Work items waiting in the bounded build queue.",
			},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_workers_active",
				Help: "Build workers that have not yet received their sentinel.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall-clock duration of index builds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
		),
		IndexKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_keys",
				Help: "Posting files in the index root after the last build.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by result type (hit, zero_result, empty, invalid, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of documents returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
	}

	m.Registry.MustRegister(
		m.FilesDiscoveredTotal,
		m.FilesIndexedTotal,
		m.FilesSkippedTotal,
		m.PostingsAppendedTotal,
		m.PostingWriteFailures,
		m.DocumentReadFailures,
		m.QueueDepth,
		m.WorkersActive,
		m.BuildDuration,
		m.IndexKeys,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
