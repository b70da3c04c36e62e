// Package vectorstore defines the vector index contract and its backends.
//
// The index stores embedded chunks scoped to a single owner and answers
// filtered nearest-neighbor queries. Owner scope is carried in the request
// context and enforced fail-closed: operations without an owner fail
// rather than matching across owners.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnavailable indicates the index backend cannot be reached.
	// Fatal for the current request; callers may retry at a higher layer.
	ErrUnavailable = errors.New("vector index unavailable")
)

// Chunk is one embedded span of source text to be indexed.
//
// Chunks carry everything a citation needs (source name, type, position,
// text) so answers never re-read the raw source.
type Chunk struct {
	// Source is the owning source name (unique per owner).
	Source string

	// SourceType is the source's content kind.
	SourceType source.Type

	// Ordinal is the chunk's 0-based position within its source.
	Ordinal int

	// Text is the chunk content.
	Text string

	// Position is the positional tag (page span, time span, byte span).
	Position source.Position

	// Vector is the chunk's embedding.
	Vector []float32
}

// ID returns the chunk's stable identifier within its owner's scope.
// Upserting the same (owner, source, ordinal) replaces, never duplicates.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%06d", c.Source, c.Ordinal)
}

// Hit is one search result.
type Hit struct {
	Source     string
	SourceType source.Type
	Ordinal    int
	Text       string
	Position   source.Position
	Score      float32
}

// SearchOptions narrows a search beyond the mandatory owner scope.
type SearchOptions struct {
	// Source restricts results to one source name. Empty means all.
	Source string
}

// Index is the contract the retrieval layer requires of a vector store.
//
// All methods take owner scope from ctx (see ContextWithOwner) and fail
// with ErrMissingOwner when it is absent. Results are ordered by
// similarity descending; equal scores break by (source, ordinal)
// ascending so repeated identical queries yield identical rankings.
type Index interface {
	// Upsert stores chunks with their precomputed embeddings.
	// Idempotent per chunk ID.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns up to k hits nearest to the query vector.
	// An owner with nothing indexed gets an empty slice, not an error.
	// k is capped by the backend's configured maximum.
	Search(ctx context.Context, vector []float32, k int, opts SearchOptions) ([]Hit, error)

	// DeleteBySource removes every chunk of the named source in one
	// operation: a concurrent Search observes the source fully present
	// or fully gone, never partially deleted.
	DeleteBySource(ctx context.Context, sourceName string) error

	// Close releases backend resources.
	Close() error
}

// chunk metadata keys shared by the backends.
const (
	metaOwner      = "owner"
	metaSource     = "source"
	metaSourceType = "source_type"
	metaOrdinal    = "ordinal"
)

// sortHits orders hits by score descending, breaking ties by source name
// and then chunk ordinal so citation numbering is reproducible.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Source != hits[j].Source {
			return hits[i].Source < hits[j].Source
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}
