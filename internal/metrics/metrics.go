// Package metrics provides Prometheus metrics for the page search service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// Indexing metrics
	PagesFetched     prometheus.Counter
	FetchErrors      prometheus.Counter
	FetchDuration    prometheus.Histogram
	ChunksCreated    prometheus.Counter
	ChunksIndexed    prometheus.Counter
	ChunksSkipped    prometheus.Counter
	ChunkingDuration prometheus.Histogram

	// Embedding metrics
	EmbeddingsGenerated prometheus.Counter
	EmbeddingErrors     prometheus.Counter
	EmbeddingDuration   prometheus.Histogram

	// Search metrics
	SearchRequests    prometheus.Counter
	SearchDuration    prometheus.Histogram
	SearchErrors      prometheus.Counter
	SearchResultCount prometheus.Histogram

	// Store metrics
	StorageDuration prometheus.Histogram
	ChunksDeleted   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_pages_fetched_total",
			Help: "Total number of pages fetched",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_fetch_errors_total",
			Help: "Total number of page fetch errors",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		}),
		ChunksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_chunks_created_total",
			Help: "Total number of chunks created",
		}),
		ChunksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_chunks_indexed_total",
			Help: "Total number of chunks embedded and stored",
		}),
		ChunksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_chunks_skipped_total",
			Help: "Total number of chunks skipped as already indexed",
		}),
		ChunkingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_chunking_duration_seconds",
			Help:    "Duration of page chunking in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		EmbeddingsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_embeddings_generated_total",
			Help: "Total number of embeddings generated",
		}),
		EmbeddingErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_embedding_errors_total",
			Help: "Total number of embedding errors",
		}),
		EmbeddingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_embedding_duration_seconds",
			Help:    "Duration of embedding generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		}),
		SearchRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_search_requests_total",
			Help: "Total number of search requests",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_search_duration_seconds",
			Help:    "Duration of search operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),
		SearchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_search_errors_total",
			Help: "Total number of search errors",
		}),
		SearchResultCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_search_results_count",
			Help:    "Number of results returned per search",
			Buckets: prometheus.LinearBuckets(0, 5, 20), // 0 to 100 results
		}),
		StorageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesearch_storage_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		ChunksDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagesearch_chunks_deleted_total",
			Help: "Total number of chunks deleted via clear operations",
		}),
	}
}

// RecordIndexing records metrics for one indexing pass over a page
func (m *Metrics) RecordIndexing(chunksCreated, chunksIndexed, chunksSkipped int) {
	m.ChunksCreated.Add(float64(chunksCreated))
	m.ChunksIndexed.Add(float64(chunksIndexed))
	m.ChunksSkipped.Add(float64(chunksSkipped))
}

// RecordSearch records metrics for a search operation
func (m *Metrics) RecordSearch(resultCount int, duration float64, err error) {
	m.SearchRequests.Inc()
	m.SearchDuration.Observe(duration)
	m.SearchResultCount.Observe(float64(resultCount))

	if err != nil {
		m.SearchErrors.Inc()
	}
}

// RecordFetch records metrics for a page fetch
func (m *Metrics) RecordFetch(duration float64, err error) {
	m.FetchDuration.Observe(duration)
	if err != nil {
		m.FetchErrors.Inc()
		return
	}
	m.PagesFetched.Inc()
}
