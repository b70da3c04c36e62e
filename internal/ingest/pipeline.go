package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/embeddings"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

var tracer = otel.Tracer("notebookd.ingest")

// Config holds pipeline configuration.
type Config struct {
	// Concurrency bounds how many sources ingest in parallel.
	// Default: 4
	Concurrency int `koanf:"concurrency"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Pipeline ingests raw sources end to end.
//
// A source either completes fully or leaves no trace: the registry
// reservation is committed only after every surviving chunk is indexed,
// and aborted (with index rollback) on any failure in between.
type Pipeline struct {
	registry   *source.Registry
	chunker    *chunker.Chunker
	embedder   embeddings.Provider
	index      vectorstore.Index
	extractors []Extractor
	logger     *zap.Logger
	config     Config
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	registry *source.Registry,
	ch *chunker.Chunker,
	embedder embeddings.Provider,
	index vectorstore.Index,
	extractors []Extractor,
	config Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Pipeline{
		registry:   registry,
		chunker:    ch,
		embedder:   embedder,
		index:      index,
		extractors: extractors,
		logger:     logger,
		config:     config,
	}
}

// extractorFor finds the extractor handling the input type.
func (p *Pipeline) extractorFor(typ source.Type) (Extractor, error) {
	for _, e := range p.extractors {
		if e.Supports(typ) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
}

// Ingest processes one raw input for the given owner and returns the
// registered source on success.
func (p *Pipeline) Ingest(ctx context.Context, owner string, input RawInput) (source.Source, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()

	span.SetAttributes(
		attribute.String("source", input.Name),
		attribute.String("source_type", string(input.Type)),
	)

	extractor, err := p.extractorFor(input.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Source{}, err
	}

	result, err := extractor.Extract(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrNoUsableContent) || errors.Is(err, ErrUnsupportedType) {
			return source.Source{}, err
		}
		return source.Source{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	// Claim the name before indexing anything, so a duplicate fails fast
	// and a concurrent ingest of the same name cannot interleave.
	reservation, err := p.registry.Reserve(owner, input.Name, input.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Source{}, err
	}

	ownerCtx := vectorstore.ContextWithOwner(ctx, owner)

	chunks := p.chunker.Chunk(result.Text, input.Type, chunker.Marks{
		PageOffsets: result.PageOffsets,
		TimeMarks:   result.TimeMarks,
	})
	if len(chunks) == 0 {
		reservation.Abort(ownerCtx)
		return source.Source{}, fmt.Errorf("%w: source %q", ErrNoUsableContent, input.Name)
	}

	indexed, err := p.embedChunks(ctx, input, chunks)
	if err != nil {
		reservation.Abort(ownerCtx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Source{}, err
	}

	if err := p.index.Upsert(ownerCtx, indexed); err != nil {
		reservation.Abort(ownerCtx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Source{}, fmt.Errorf("indexing source %q: %w", input.Name, err)
	}

	src := reservation.Commit(len(indexed))

	span.SetAttributes(attribute.Int("chunk_count", len(indexed)))
	span.SetStatus(codes.Ok, "success")
	p.logger.Info("source ingested",
		zap.String("owner", owner),
		zap.String("source", input.Name),
		zap.String("type", string(input.Type)),
		zap.Int("chunks", len(indexed)),
		zap.Int("skipped", len(chunks)-len(indexed)),
	)
	return src, nil
}

// embedChunks embeds all chunks as one batch, falling back to per-chunk
// embedding when the batch fails so one bad chunk cannot sink the whole
// source. Skipped chunks are logged; all chunks skipped is a failure.
func (p *Pipeline) embedChunks(ctx context.Context, input RawInput, chunks []chunker.Chunk) ([]vectorstore.Chunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) == len(chunks) {
		return p.toIndexChunks(input, chunks, vectors, nil), nil
	}
	if err != nil {
		p.logger.Warn("batch embedding failed, retrying per chunk",
			zap.String("source", input.Name),
			zap.Error(err),
		)
	}

	vectors = make([][]float32, len(chunks))
	skipped := make([]bool, len(chunks))
	skippedCount := 0
	for i, c := range chunks {
		single, err := p.embedder.EmbedDocuments(ctx, []string{c.Text})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("skipping chunk that failed to embed",
				zap.String("source", input.Name),
				zap.Int("ordinal", c.Ordinal),
				zap.Error(err),
			)
			skipped[i] = true
			skippedCount++
			continue
		}
		vectors[i] = single[0]
	}
	if skippedCount == len(chunks) {
		return nil, fmt.Errorf("%w: all %d chunks of %q failed to embed", ErrNoUsableContent, len(chunks), input.Name)
	}
	return p.toIndexChunks(input, chunks, vectors, skipped), nil
}

// toIndexChunks pairs chunk texts with their vectors, dropping skipped
// entries.
func (p *Pipeline) toIndexChunks(input RawInput, chunks []chunker.Chunk, vectors [][]float32, skipped []bool) []vectorstore.Chunk {
	out := make([]vectorstore.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if skipped != nil && skipped[i] {
			continue
		}
		out = append(out, vectorstore.Chunk{
			Source:     input.Name,
			SourceType: input.Type,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Position:   c.Position,
			Vector:     vectors[i],
		})
	}
	return out
}

// Result is the outcome of one input within a batch ingestion.
type Result struct {
	Name   string
	Source source.Source
	Err    error
}

// IngestAll ingests a batch of inputs with bounded concurrency. Each
// input succeeds or fails on its own; results come back in input order.
func (p *Pipeline) IngestAll(ctx context.Context, owner string, inputs []RawInput) []Result {
	results := make([]Result, len(inputs))
	sem := make(chan struct{}, p.config.Concurrency)

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input RawInput) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			src, err := p.Ingest(ctx, owner, input)
			results[i] = Result{Name: input.Name, Source: src, Err: err}
		}(i, input)
	}
	wg.Wait()

	return results
}
