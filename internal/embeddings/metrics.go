package embeddings

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// embedRequestsTotal counts embedding requests.
	// Labels: kind (documents, query), result (success, error)
	embedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notebookd",
			Subsystem: "embeddings",
			Name:      "requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"kind", "result"},
	)

	// embedDuration tracks embedding latency.
	embedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notebookd",
			Subsystem: "embeddings",
			Name:      "request_duration_seconds",
			Help:      "Duration of embedding requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// embedTexts tracks batch sizes for document embedding.
	embedTexts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "notebookd",
			Subsystem: "embeddings",
			Name:      "batch_size",
			Help:      "Number of texts per document embedding request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)
)

// instrumentedProvider wraps a Provider with Prometheus metrics.
type instrumentedProvider struct {
	inner Provider
}

// WithMetrics wraps a provider so every call is counted and timed.
func WithMetrics(inner Provider) Provider {
	return &instrumentedProvider{inner: inner}
}

func observeEmbed(kind string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	embedRequestsTotal.WithLabelValues(kind, result).Inc()
	embedDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *instrumentedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := m.inner.EmbedDocuments(ctx, texts)
	observeEmbed("documents", start, err)
	if err == nil {
		embedTexts.Observe(float64(len(texts)))
	}
	return vectors, err
}

func (m *instrumentedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := m.inner.EmbedQuery(ctx, text)
	observeEmbed("query", start, err)
	return vector, err
}

func (m *instrumentedProvider) Dimension() int {
	return m.inner.Dimension()
}

func (m *instrumentedProvider) Close() error {
	return m.inner.Close()
}

var _ Provider = (*instrumentedProvider)(nil)
