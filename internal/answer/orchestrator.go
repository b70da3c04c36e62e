package answer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/citation"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/memory"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/retriever"
)

var tracer = otel.Tracer("notebookd.answer")

// State tracks where a query is in its lifecycle.
type State string

const (
	StateReceived         State = "received"
	StateContextAssembled State = "context_assembled"
	StateGenerating       State = "generating"
	StateBound            State = "bound"
	StatePersisted        State = "persisted"
	StateFailed           State = "failed"
)

// Config holds orchestration tuning.
type Config struct {
	// GenerationTimeout bounds one generation attempt.
	// Default: 60s
	GenerationTimeout time.Duration `koanf:"generation_timeout"`

	// RetryBackoff is the pause before the retry attempt.
	// Default: 2s
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxRetries is how many times a failed generation is retried.
	// Default: 1
	MaxRetries int `koanf:"max_retries"`

	// NoSourcesAnswer is returned when the owner has nothing indexed.
	NoSourcesAnswer string `koanf:"no_sources_answer"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 60 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
	if c.NoSourcesAnswer == "" {
		c.NoSourcesAnswer = "I don't have any sources to answer from yet. Add a source to this notebook and ask again."
	}
}

// SourceCounter reports how many sources an owner has registered.
type SourceCounter interface {
	Count(owner string) int
}

// Result is a completed answer.
type Result struct {
	Answer    string            `json:"answer"`
	Citations []citation.Record `json:"citations"`
	SessionID string            `json:"session_id"`
	State     State             `json:"state"`
}

// Orchestrator runs a query end to end: recall and retrieval, grounded
// generation, citation binding, and persistence of both turns.
//
// Answer delivery outranks memory durability on the write side: the user
// turn is persisted before generation starts, but a failure to persist
// the assistant turn is logged and the answer still returned.
type Orchestrator struct {
	retriever *retriever.Retriever
	mem       memory.Adapter
	generator Generator
	sources   SourceCounter
	config    Config
	logger    *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	rt *retriever.Retriever,
	mem memory.Adapter,
	generator Generator,
	sources SourceCounter,
	config Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Orchestrator{
		retriever: rt,
		mem:       mem,
		generator: generator,
		sources:   sources,
		config:    config,
		logger:    logger,
	}
}

// Answer processes one query for the owner. Empty sessionID starts a new
// session.
func (o *Orchestrator) Answer(ctx context.Context, owner, sessionID, query string, k int) (Result, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Answer")
	defer span.End()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("session_id", sessionID))

	result := Result{SessionID: sessionID, State: StateReceived}

	// Recall and retrieval are independent reads; run them together.
	var (
		wg        sync.WaitGroup
		rc        retriever.RetrievedContext
		recall    string
		rcErr     error
		recallErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rc, rcErr = o.retriever.Retrieve(ctx, owner, query, k)
	}()
	go func() {
		defer wg.Done()
		recall, recallErr = o.mem.Recall(ctx, owner, sessionID)
	}()
	wg.Wait()

	if rcErr != nil {
		result.State = StateFailed
		span.RecordError(rcErr)
		span.SetStatus(codes.Error, rcErr.Error())
		return result, fmt.Errorf("retrieving context: %w", rcErr)
	}
	if recallErr != nil {
		// Degrade to an empty history rather than failing the query.
		o.logger.Warn("memory recall failed, answering without history",
			zap.String("owner", owner),
			zap.String("session", sessionID),
			zap.Error(recallErr),
		)
		recall = ""
	}
	result.State = StateContextAssembled

	if rc.Empty() && o.sources.Count(owner) == 0 {
		return o.answerWithoutSources(ctx, owner, sessionID, query, result)
	}

	// Persist the user turn before generation: a crash mid-generation
	// must not lose the question.
	if err := o.mem.Remember(ctx, memory.Turn{
		SessionID: sessionID,
		Owner:     owner,
		Role:      memory.RoleUser,
		Text:      query,
	}); err != nil {
		result.State = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("persisting user turn: %w", err)
	}

	result.State = StateGenerating
	raw, err := o.generate(ctx, query, rc.ContextBlock(), recall)
	if err != nil {
		result.State = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	bound, records := citation.Bind(raw, rc)
	result.Answer = bound
	result.Citations = records
	result.State = StateBound

	o.persistAssistantTurn(ctx, owner, sessionID, bound, records)
	result.State = StatePersisted

	span.SetAttributes(attribute.Int("citation_count", len(records)))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// answerWithoutSources handles the empty-notebook case with a canned
// answer; both turns are still recorded so the session reads coherently.
func (o *Orchestrator) answerWithoutSources(ctx context.Context, owner, sessionID, query string, result Result) (Result, error) {
	if err := o.mem.Remember(ctx, memory.Turn{
		SessionID: sessionID,
		Owner:     owner,
		Role:      memory.RoleUser,
		Text:      query,
	}); err != nil {
		result.State = StateFailed
		return result, fmt.Errorf("persisting user turn: %w", err)
	}

	result.Answer = o.config.NoSourcesAnswer
	result.Citations = []citation.Record{}
	result.State = StateBound

	o.persistAssistantTurn(ctx, owner, sessionID, result.Answer, nil)
	result.State = StatePersisted
	return result, nil
}

// generate runs one bounded generation attempt, retrying transiently
// failed attempts unless the caller has gone away.
func (o *Orchestrator) generate(ctx context.Context, query, contextBlock, recall string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("generation canceled: %w", ctx.Err())
			case <-time.After(o.config.RetryBackoff):
			}
			o.logger.Info("retrying generation", zap.Int("attempt", attempt+1))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.config.GenerationTimeout)
		answer, err := o.generator.Generate(attemptCtx, query, contextBlock, recall)
		cancel()
		if err == nil {
			return answer, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("generation canceled: %w", ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: after %d attempts: %v", ErrGeneration, o.config.MaxRetries+1, lastErr)
}

// persistAssistantTurn records the answer. Failure is logged, not
// returned; the user still gets their answer.
func (o *Orchestrator) persistAssistantTurn(ctx context.Context, owner, sessionID, text string, records []citation.Record) {
	cited := make([]string, 0, len(records))
	for _, r := range records {
		cited = append(cited, r.Source)
	}

	if err := o.mem.Remember(ctx, memory.Turn{
		SessionID: sessionID,
		Owner:     owner,
		Role:      memory.RoleAssistant,
		Text:      text,
		Citations: cited,
	}); err != nil {
		o.logger.Warn("failed to persist assistant turn",
			zap.String("owner", owner),
			zap.String("session", sessionID),
			zap.Error(err),
		)
	}
}
