// Package retriever answers queries with ranked, citable context.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/embeddings"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

var tracer = otel.Tracer("notebookd.retriever")

// Config holds retrieval tuning.
type Config struct {
	// K is the default number of chunks to retrieve.
	// Default: 5
	K int `koanf:"k"`

	// MaxK caps caller-requested k.
	// Default: 20
	MaxK int `koanf:"max_k"`

	// MinSimilarity drops weak matches. The single best hit survives the
	// threshold as long as its score is positive, so a notebook with
	// sources never comes back empty-handed.
	// Default: 0.25
	MinSimilarity float32 `koanf:"min_similarity"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.K == 0 {
		c.K = 5
	}
	if c.MaxK == 0 {
		c.MaxK = 20
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.25
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.K < 0 || c.MaxK < 0 {
		return fmt.Errorf("k values must be non-negative")
	}
	if c.K > c.MaxK {
		return fmt.Errorf("k (%d) exceeds max_k (%d)", c.K, c.MaxK)
	}
	return nil
}

// Entry is one retrieved chunk with its citation index.
type Entry struct {
	// Index is the 1-based citation number generators refer to as [n].
	Index int

	// Hit is the underlying chunk with source, position and score.
	Hit vectorstore.Hit
}

// RetrievedContext is the ranked evidence for one query.
type RetrievedContext struct {
	Query   string
	Entries []Entry
}

// Empty reports whether retrieval found nothing usable.
func (rc RetrievedContext) Empty() bool {
	return len(rc.Entries) == 0
}

// ContextBlock renders the entries as a numbered block for prompting.
// Each entry carries its citation index, source name and position, so
// the generator can ground statements with [n] markers.
func (rc RetrievedContext) ContextBlock() string {
	if rc.Empty() {
		return ""
	}
	var b strings.Builder
	for _, e := range rc.Entries {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", e.Index, e.Hit.Source, e.Hit.Position.String(), e.Hit.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Retriever embeds queries and searches the owner's index.
type Retriever struct {
	embedder embeddings.Provider
	index    vectorstore.Index
	config   Config
	logger   *zap.Logger
}

// New creates a Retriever.
func New(embedder embeddings.Provider, index vectorstore.Index, config Config, logger *zap.Logger) (*Retriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}, nil
}

// Retrieve embeds the query and returns the owner's best-matching chunks
// as a numbered context. k <= 0 uses the configured default; k above the
// cap is clamped.
func (r *Retriever) Retrieve(ctx context.Context, owner, query string, k int) (RetrievedContext, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	rc := RetrievedContext{Query: query}

	if strings.TrimSpace(query) == "" {
		return rc, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = r.config.K
	}
	if k > r.config.MaxK {
		k = r.config.MaxK
	}
	span.SetAttributes(attribute.Int("k", k))

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rc, fmt.Errorf("embedding query: %w", err)
	}

	ownerCtx := vectorstore.ContextWithOwner(ctx, owner)
	hits, err := r.index.Search(ownerCtx, vector, k, vectorstore.SearchOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rc, fmt.Errorf("searching index: %w", err)
	}

	kept := thresholdHits(hits, r.config.MinSimilarity)
	rc.Entries = make([]Entry, len(kept))
	for i, hit := range kept {
		rc.Entries[i] = Entry{Index: i + 1, Hit: hit}
	}

	span.SetAttributes(attribute.Int("results_count", len(rc.Entries)))
	span.SetStatus(codes.Ok, "success")
	r.logger.Debug("retrieved context",
		zap.String("owner", owner),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(rc.Entries)),
	)
	return rc, nil
}

// thresholdHits drops hits below the similarity floor, keeping the top
// hit when it scores above zero even if below the floor.
func thresholdHits(hits []vectorstore.Hit, minSimilarity float32) []vectorstore.Hit {
	kept := make([]vectorstore.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minSimilarity {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 && len(hits) > 0 && hits[0].Score > 0 {
		kept = append(kept, hits[0])
	}
	return kept
}
