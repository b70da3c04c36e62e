package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("notebookd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/notebookd/index"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// VectorSize is the expected embedding dimension.
	// Must match the embedding provider's output dimension.
	// Default: 384 (bge-small-en-v1.5)
	VectorSize int `koanf:"vector_size"`

	// MaxResults is the system-enforced upper bound on k.
	// Default: 20.
	MaxResults int `koanf:"max_results"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/notebookd/index"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxResults == 0 {
		c.MaxResults = 20
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("%w: max results must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex implements Index using chromem-go, an embeddable vector
// database with no external service dependency.
//
// Each owner gets their own collection; owner metadata is additionally
// stamped on every document and injected into every query filter, so a
// collection-routing bug still cannot leak across owners. chromem applies
// queries and where-filtered deletes under a per-collection lock, which is
// what makes DeleteBySource atomic from a searcher's point of view.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemIndex creates a ChromemIndex with persistent storage.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrUnavailable, err)
	}

	idx := &ChromemIndex{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem index initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return idx, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// collectionFor returns the collection name for an owner.
func collectionFor(owner string) string {
	return "u_" + sanitizeCollectionName(owner)
}

// sanitizeCollectionName maps an arbitrary owner ID onto the character
// set chromem accepts for collection names. A hash prefix is used when
// sanitization leaves nothing, so distinct all-unicode IDs cannot
// collapse into one collection.
func sanitizeCollectionName(s string) string {
	original := s
	s = strings.ToLower(s)
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			result.WriteRune('_')
		}
	}
	if result.Len() == 0 {
		hash := sha256.Sum256([]byte(original))
		return "h_" + hex.EncodeToString(hash[:8])
	}
	return result.String()
}

// noEmbedFunc is passed wherever chromem wants an embedding function.
// Every vector reaching this index is precomputed, so being called here
// means a chunk arrived without one.
func noEmbedFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem index stores precomputed vectors only")
}

// Upsert stores chunks in the owner's collection. Re-upserting a chunk ID
// replaces the previous entry.
func (s *ChromemIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Vector) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				ErrDimensionMismatch, chunk.ID(), len(chunk.Vector), s.config.VectorSize)
		}
		docs[i] = chromem.Document{
			ID:        chunk.ID(),
			Content:   chunk.Text,
			Metadata:  chunkMetadata(owner, chunk),
			Embedding: chunk.Vector,
		}
	}

	collection, err := s.db.GetOrCreateCollection(collectionFor(owner), nil, noEmbedFunc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: getting collection: %v", ErrUnavailable, err)
	}

	// Concurrency of 1: embeddings are already computed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: adding documents: %v", ErrUnavailable, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted chunks",
		zap.String("owner", owner),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// chunkMetadata flattens a chunk into chromem's string metadata.
func chunkMetadata(owner string, chunk Chunk) map[string]string {
	meta := map[string]string{
		metaOwner:      owner,
		metaSource:     chunk.Source,
		metaSourceType: string(chunk.SourceType),
		metaOrdinal:    strconv.Itoa(chunk.Ordinal),
	}
	for k, v := range source.EncodePosition(chunk.Position) {
		meta[k] = v
	}
	return meta
}

// Search returns the k nearest chunks in the owner's collection.
func (s *ChromemIndex) Search(ctx context.Context, vector []float32, k int, opts SearchOptions) ([]Hit, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > s.config.MaxResults {
		k = s.config.MaxResults
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(collectionFor(owner), noEmbedFunc)
	if collection == nil {
		// No sources indexed yet: a normal state, not an error.
		return []Hit{}, nil
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []Hit{}, nil
	}
	if k > docCount {
		k = docCount
	}

	where := map[string]string{metaOwner: owner}
	if opts.Source != "" {
		where[metaSource] = opts.Source
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying collection: %v", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit, err := hitFromMetadata(r.Content, r.Similarity, r.Metadata)
		if err != nil {
			s.logger.Warn("skipping result with malformed metadata",
				zap.String("owner", owner),
				zap.String("id", r.ID),
				zap.Error(err),
			)
			continue
		}
		hits = append(hits, hit)
	}
	sortHits(hits)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// hitFromMetadata reconstructs a Hit from flattened chunk metadata.
func hitFromMetadata(content string, score float32, meta map[string]string) (Hit, error) {
	ordinal, err := strconv.Atoi(meta[metaOrdinal])
	if err != nil {
		return Hit{}, fmt.Errorf("parsing ordinal %q: %w", meta[metaOrdinal], err)
	}
	pos, ok := source.DecodePosition(meta)
	if !ok {
		return Hit{}, fmt.Errorf("missing position metadata")
	}
	return Hit{
		Source:     meta[metaSource],
		SourceType: source.Type(meta[metaSourceType]),
		Ordinal:    ordinal,
		Text:       content,
		Position:   pos,
		Score:      score,
	}, nil
}

// DeleteBySource removes every chunk of a source. chromem applies the
// where-filtered delete under the collection lock, so a concurrent query
// sees the source before or after deletion, never mid-way.
func (s *ChromemIndex) DeleteBySource(ctx context.Context, sourceName string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.DeleteBySource")
	defer span.End()

	span.SetAttributes(attribute.String("source", sourceName))

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	collection := s.db.GetCollection(collectionFor(owner), noEmbedFunc)
	if collection == nil {
		return nil
	}

	where := map[string]string{metaOwner: owner, metaSource: sourceName}
	if err := collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting source %q: %v", ErrUnavailable, sourceName, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted source chunks",
		zap.String("owner", owner),
		zap.String("source", sourceName),
	)
	return nil
}

// Close closes the index. chromem persists on write, so nothing to flush.
func (s *ChromemIndex) Close() error {
	s.logger.Info("chromem index closed")
	return nil
}

// Ensure ChromemIndex implements Index.
var _ Index = (*ChromemIndex)(nil)
