package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts index operations.
	// Labels: provider, operation, result (success, error)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notebookd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"provider", "operation", "result"},
	)

	// operationDuration tracks index operation latency.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notebookd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// searchHits tracks how many hits searches return.
	searchHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notebookd",
			Subsystem: "vectorstore",
			Name:      "search_hits",
			Help:      "Number of hits returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		},
		[]string{"provider"},
	)
)

// instrumentedIndex wraps an Index with Prometheus operation metrics.
type instrumentedIndex struct {
	inner    Index
	provider string
}

func newInstrumentedIndex(inner Index, provider string) Index {
	return &instrumentedIndex{inner: inner, provider: provider}
}

func (m *instrumentedIndex) observe(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(m.provider, operation, result).Inc()
	operationDuration.WithLabelValues(m.provider, operation).Observe(time.Since(start).Seconds())
}

func (m *instrumentedIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	start := time.Now()
	err := m.inner.Upsert(ctx, chunks)
	m.observe("upsert", start, err)
	return err
}

func (m *instrumentedIndex) Search(ctx context.Context, vector []float32, k int, opts SearchOptions) ([]Hit, error) {
	start := time.Now()
	hits, err := m.inner.Search(ctx, vector, k, opts)
	m.observe("search", start, err)
	if err == nil {
		searchHits.WithLabelValues(m.provider).Observe(float64(len(hits)))
	}
	return hits, err
}

func (m *instrumentedIndex) DeleteBySource(ctx context.Context, sourceName string) error {
	start := time.Now()
	err := m.inner.DeleteBySource(ctx, sourceName)
	m.observe("delete_by_source", start, err)
	return err
}

func (m *instrumentedIndex) Close() error {
	return m.inner.Close()
}

var _ Index = (*instrumentedIndex)(nil)
