// Package telemetry records indexing and search metrics. Prometheus collectors are
// exposed by `codeindex serve --metrics-addr`; query statistics stay in memory and
// are reported by the index_status tool. Nothing is sent anywhere.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one process. A nil *Metrics is
// valid and records nothing.
//
// Metrics:
//   - codeindex_index_runs_total{status}
//   - codeindex_index_files_total
//   - codeindex_index_elements_total
//   - codeindex_index_errors_total
//   - codeindex_index_stale_elements_total{action}
//   - codeindex_index_duration_seconds
//   - codeindex_search_requests_total{op}
//   - codeindex_search_zero_results_total{op}
//   - codeindex_search_skipped_rows_total{op}
//   - codeindex_search_duration_seconds{op}
//   - codeindex_embed_batch_duration_seconds
type Metrics struct {
	registry *prometheus.Registry

	IndexRuns      *prometheus.CounterVec
	IndexFiles     prometheus.Counter
	IndexElements  prometheus.Counter
	IndexErrors    prometheus.Counter
	StaleElements  *prometheus.CounterVec
	IndexDuration  prometheus.Histogram
	Searches       *prometheus.CounterVec
	ZeroResults    *prometheus.CounterVec
	SkippedRows    *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	EmbedDuration  prometheus.Histogram

	queries *QueryStats
}

// NewMetrics creates collectors on a private registry, so tests and multiple
// servers in one process never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IndexRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeindex_index_runs_total",
			Help: "Indexing runs by outcome",
		}, []string{"status"}),
		IndexFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeindex_index_files_total",
			Help: "Files indexed",
		}),
		IndexElements: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeindex_index_elements_total",
			Help: "Code elements written to the store",
		}),
		IndexErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeindex_index_errors_total",
			Help: "Per-file read or parse failures",
		}),
		StaleElements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeindex_index_stale_elements_total",
			Help: "Stored elements no longer produced by their file",
		}, []string{"action"}),
		IndexDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeindex_index_duration_seconds",
			Help:    "Duration of indexing runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeindex_search_requests_total",
			Help: "Search operations by kind",
		}, []string{"op"}),
		ZeroResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeindex_search_zero_results_total",
			Help: "Search operations that returned nothing",
		}, []string{"op"}),
		SkippedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeindex_search_skipped_rows_total",
			Help: "Rows dropped for malformed metadata",
		}, []string{"op"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeindex_search_duration_seconds",
			Help:    "Duration of search operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"op"}),
		EmbedDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeindex_embed_batch_duration_seconds",
			Help:    "Duration of embedding batches",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		queries: NewQueryStats(DefaultQueryStatsConfig()),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Queries returns the in-memory query statistics, nil for a nil receiver.
func (m *Metrics) Queries() *QueryStats {
	if m == nil {
		return nil
	}
	return m.queries
}

// IndexRun is the summary of one indexing run.
type IndexRun struct {
	Files    int
	Elements int
	Errors   int
	Stale    int
	Pruned   int
	Duration time.Duration
	Failed   bool
}

// RecordIndexRun records a finished run.
func (m *Metrics) RecordIndexRun(run IndexRun) {
	if m == nil {
		return
	}
	status := "success"
	if run.Failed {
		status = "failed"
	}
	m.IndexRuns.WithLabelValues(status).Inc()
	m.IndexFiles.Add(float64(run.Files))
	m.IndexElements.Add(float64(run.Elements))
	m.IndexErrors.Add(float64(run.Errors))
	m.StaleElements.WithLabelValues("kept").Add(float64(run.Stale - run.Pruned))
	m.StaleElements.WithLabelValues("pruned").Add(float64(run.Pruned))
	m.IndexDuration.Observe(run.Duration.Seconds())
}

// RecordEmbedBatch records the latency of one EmbedBatch call.
func (m *Metrics) RecordEmbedBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.EmbedDuration.Observe(d.Seconds())
}

// RecordSearch records one search operation and feeds the query statistics.
func (m *Metrics) RecordSearch(op, query string, results, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(op).Inc()
	m.SearchDuration.WithLabelValues(op).Observe(d.Seconds())
	if results == 0 {
		m.ZeroResults.WithLabelValues(op).Inc()
	}
	if skipped > 0 {
		m.SkippedRows.WithLabelValues(op).Add(float64(skipped))
	}
	m.queries.Record(QueryEvent{
		Op:          op,
		Query:       query,
		ResultCount: results,
		Latency:     d,
		Timestamp:   time.Now(),
	})
}
