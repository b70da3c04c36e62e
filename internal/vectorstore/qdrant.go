package vectorstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("notebookd.vectorstore.qdrant")

// pointNamespace derives deterministic point IDs, so re-upserting a chunk
// replaces the existing point instead of duplicating it.
var pointNamespace = uuid.MustParse("7f0a2c1e-5b4d-4c8a-9e3f-0d6b8a1c2e4f")

// payload keys alongside the chunk metadata keys.
const (
	payloadContent = "content"
	payloadChunkID = "chunk_id"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int `koanf:"port"`

	// CollectionName is the single collection all owners share.
	// Owner scoping is payload-filtered on every operation.
	// Default: "notebook_chunks"
	CollectionName string `koanf:"collection_name"`

	// VectorSize is the embedding dimension.
	// Must match the embedding provider's output dimension.
	// Default: 384
	VectorSize uint64 `koanf:"vector_size"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// MaxRetries is the retry budget for transient failures.
	// Default: 3
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial backoff, doubling per retry.
	// Default: 1 second
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxResults is the system-enforced upper bound on k.
	// Default: 20
	MaxResults int `koanf:"max_results"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "notebook_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxResults == 0 {
		c.MaxResults = 20
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether a gRPC error should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex implements Index against a Qdrant server over native gRPC.
//
// All owners share one collection; isolation relies on the owner payload
// field being stamped on every point and injected into every filter.
// Deletes use a server-side filter with Wait, so the whole source is gone
// before the call returns.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantIndex connects to Qdrant, verifies health and ensures the
// collection exists.
func NewQdrantIndex(config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(50 * 1024 * 1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	idx := &QdrantIndex{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrUnavailable, err)
	}

	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
	)

	return idx, nil
}

// ensureCollection creates the collection if it does not exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.CollectionName)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrUnavailable, s.config.CollectionName, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrUnavailable, s.config.CollectionName, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient gRPC failures.
func (s *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v",
				ErrUnavailable, operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// pointID derives the deterministic Qdrant point ID for a chunk.
func pointID(owner string, chunk Chunk) *qdrant.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(owner+"\x00"+chunk.ID()))
	return qdrant.NewIDUUID(id.String())
}

// Upsert stores chunks as points. Deterministic point IDs make repeated
// upserts of the same chunk replace the previous point.
func (s *QdrantIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", s.config.CollectionName),
	)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		if uint64(len(chunk.Vector)) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				ErrDimensionMismatch, chunk.ID(), len(chunk.Vector), s.config.VectorSize)
		}

		payload := make(map[string]*qdrant.Value)
		payload[payloadContent] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: chunk.Text}}
		payload[payloadChunkID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: chunk.ID()}}
		for k, v := range chunkMetadata(owner, chunk) {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(owner, chunk),
			Vectors: qdrant.NewVectors(chunk.Vector...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted chunks",
		zap.String("owner", owner),
		zap.Int("count", len(points)),
	)
	return nil
}

// ownerFilter builds the mandatory owner condition, optionally narrowed
// to one source.
func ownerFilter(owner, sourceName string) *qdrant.Filter {
	conditions := []*qdrant.Condition{
		{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: metaOwner,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: owner},
					},
				},
			},
		},
	}
	if sourceName != "" {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: metaSource,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: sourceName},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Search returns the k nearest points within the owner's payload scope.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, k int, opts SearchOptions) ([]Hit, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("k", k),
	)

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
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	var results []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         ownerFilter(owner, opts.Source),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.CollectionName, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, point := range results {
		hit, err := hitFromPayload(point)
		if err != nil {
			s.logger.Warn("skipping point with malformed payload",
				zap.String("owner", owner),
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

// hitFromPayload reconstructs a Hit from a scored point's payload.
func hitFromPayload(point *qdrant.ScoredPoint) (Hit, error) {
	meta := make(map[string]string, len(point.Payload))
	for k, v := range point.Payload {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			meta[k] = sv.StringValue
		}
	}

	ordinal, err := strconv.Atoi(meta[metaOrdinal])
	if err != nil {
		return Hit{}, fmt.Errorf("parsing ordinal %q: %w", meta[metaOrdinal], err)
	}
	pos, ok := source.DecodePosition(meta)
	if !ok {
		return Hit{}, fmt.Errorf("missing position payload")
	}
	return Hit{
		Source:     meta[metaSource],
		SourceType: source.Type(meta[metaSourceType]),
		Ordinal:    ordinal,
		Text:       meta[payloadContent],
		Position:   pos,
		Score:      point.Score,
	}, nil
}

// DeleteBySource removes every chunk of a source via a server-side filter
// delete. Wait blocks until the deletion is applied, so a subsequent
// search cannot observe a half-deleted source.
func (s *QdrantIndex) DeleteBySource(ctx context.Context, sourceName string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.DeleteBySource")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.String("source", sourceName),
	)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: ownerFilter(owner, sourceName),
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting source %q: %w", sourceName, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted source chunks",
		zap.String("owner", owner),
		zap.String("source", sourceName),
	)
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
