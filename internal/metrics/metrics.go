// Package metrics provides Prometheus metrics for QueryLens
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for QueryLens
type Metrics struct {
	// Ingestion metrics
	RecordsIngestedTotal prometheus.Counter
	RecordsSkippedTotal  prometheus.Counter
	GroupsPerRun         prometheus.Histogram

	// Metadata cache metrics
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	MetadataFetchDuration prometheus.Histogram

	// Advisor metrics
	AdvisorRequestsTotal   *prometheus.CounterVec
	AdvisorRequestDuration prometheus.Histogram

	// Run metrics
	RunsTotal   prometheus.Counter
	RunDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics on the default registerer
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on the given registerer.
// Tests pass a private registry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	// Ingestion metrics
	m.RecordsIngestedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_records_ingested_total",
			Help: "Total number of operation records grouped",
		},
	)

	m.RecordsSkippedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_records_skipped_total",
			Help: "Total number of untraversable records dropped",
		},
	)

	m.GroupsPerRun = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querylens_groups_per_run",
			Help:    "Number of distinct query groups produced per run",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Metadata cache metrics
	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_metadata_cache_hits_total",
			Help: "Total number of metadata cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_metadata_cache_misses_total",
			Help: "Total number of metadata cache misses",
		},
	)

	m.MetadataFetchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querylens_metadata_fetch_duration_seconds",
			Help:    "Duration of per-collection metadata fetches in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Advisor metrics
	m.AdvisorRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querylens_advisor_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"status"},
	)

	m.AdvisorRequestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querylens_advisor_request_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Run metrics
	m.RunsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_runs_total",
			Help: "Total number of analysis runs",
		},
	)

	m.RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querylens_run_duration_seconds",
			Help:    "Duration of full analysis runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	return m
}

// RecordIngestion records the outcome of one grouping pass
func (m *Metrics) RecordIngestion(ingested, skipped, groups int) {
	m.RecordsIngestedTotal.Add(float64(ingested))
	m.RecordsSkippedTotal.Add(float64(skipped))
	m.GroupsPerRun.Observe(float64(groups))
}

// RecordCacheDelta records cache hit/miss counts accumulated by one run
func (m *Metrics) RecordCacheDelta(hits, misses uint64) {
	m.CacheHitsTotal.Add(float64(hits))
	m.CacheMissesTotal.Add(float64(misses))
}

// RecordAdvisorRequest records a recommendation request with its status
func (m *Metrics) RecordAdvisorRequest(status string, duration time.Duration) {
	m.AdvisorRequestsTotal.WithLabelValues(status).Inc()
	m.AdvisorRequestDuration.Observe(duration.Seconds())
}

// RecordRun records a completed analysis run
func (m *Metrics) RecordRun(duration time.Duration) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(duration.Seconds())
}
