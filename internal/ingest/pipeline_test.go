package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

const testDim = 4

// fakeEmbedder embeds deterministically and can be told to fail whole
// batches or individual texts.
type fakeEmbedder struct {
	mu        sync.Mutex
	failBatch bool
	failTexts map[string]bool
	calls     int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failBatch && len(texts) > 1 {
		return nil, errors.New("batch rejected")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failTexts[t] {
			return nil, fmt.Errorf("cannot embed %q", t)
		}
		out[i] = []float32{float32(len(t)), 0, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }
func (f *fakeEmbedder) Close() error   { return nil }

// fakeIndex records upserts and deletions.
type fakeIndex struct {
	mu        sync.Mutex
	upserted  map[string][]vectorstore.Chunk
	deleted   []string
	upsertErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserted: make(map[string][]vectorstore.Chunk)}
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	owner, err := vectorstore.OwnerFromContext(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted[owner] = append(f.upserted[owner], chunks...)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, k int, opts vectorstore.SearchOptions) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteBySource(ctx context.Context, sourceName string) error {
	owner, err := vectorstore.OwnerFromContext(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, owner+"/"+sourceName)
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func newTestPipeline(t *testing.T, idx *fakeIndex, emb *fakeEmbedder) (*Pipeline, *source.Registry) {
	t.Helper()

	reg := source.NewRegistry(vectorstore.NewSourceDeleter(idx), nil)
	ch, err := chunker.New(chunker.Config{TargetSize: 50, Overlap: 10, BoundaryWindow: 1})
	require.NoError(t, err)

	p := NewPipeline(reg, ch, emb, idx, []Extractor{NewTextExtractor(), NewPreExtractedExtractor()}, Config{}, nil)
	return p, reg
}

func textInput(name, text string) RawInput {
	return RawInput{Name: name, Type: source.TypeText, Text: text}
}

func TestIngestSuccess(t *testing.T) {
	idx := newFakeIndex()
	p, reg := newTestPipeline(t, idx, &fakeEmbedder{})

	src, err := p.Ingest(context.Background(), "alice", textInput("notes", "Short note about turtles."))
	require.NoError(t, err)

	assert.Equal(t, "notes", src.Name)
	assert.Equal(t, source.TypeText, src.Type)
	assert.Equal(t, 1, src.ChunkCount)

	chunks := idx.upserted["alice"]
	require.Len(t, chunks, 1)
	assert.Equal(t, "notes", chunks[0].Source)
	assert.Equal(t, 0, chunks[0].Ordinal)

	require.Len(t, reg.List("alice"), 1)
}

func TestIngestDuplicateName(t *testing.T) {
	idx := newFakeIndex()
	p, _ := newTestPipeline(t, idx, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), "alice", textInput("notes", "first"))
	require.NoError(t, err)

	_, err = p.Ingest(context.Background(), "alice", textInput("notes", "second"))
	assert.ErrorIs(t, err, source.ErrSourceExists)

	// Same name for a different owner is independent.
	_, err = p.Ingest(context.Background(), "bob", textInput("notes", "third"))
	assert.NoError(t, err)
}

func TestIngestEmptyContent(t *testing.T) {
	idx := newFakeIndex()
	p, reg := newTestPipeline(t, idx, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), "alice", textInput("blank", "   \n\t  "))
	assert.ErrorIs(t, err, ErrNoUsableContent)

	// Nothing registered, name still free.
	assert.Empty(t, reg.List("alice"))
}

func TestIngestUnsupportedType(t *testing.T) {
	idx := newFakeIndex()
	p, _ := newTestPipeline(t, idx, &fakeEmbedder{})

	// Raw media bytes are rejected; the server does not transcribe.
	_, err := p.Ingest(context.Background(), "alice", RawInput{
		Name: "talk", Type: source.TypeAudio, Data: []byte("pcm"),
	})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestIngestPreExtractedDocument(t *testing.T) {
	idx := newFakeIndex()
	p, _ := newTestPipeline(t, idx, &fakeEmbedder{})

	src, err := p.Ingest(context.Background(), "alice", RawInput{
		Name:        "paper.pdf",
		Type:        source.TypeDocument,
		Text:        "Page one text here. Page two text.",
		PageOffsets: []int{20},
	})
	require.NoError(t, err)
	assert.Equal(t, source.TypeDocument, src.Type)

	chunks := idx.upserted["alice"]
	require.NotEmpty(t, chunks)
	span, ok := chunks[0].Position.(source.PageSpan)
	require.True(t, ok)
	assert.Equal(t, 1, span.First)
	assert.Equal(t, 2, span.Last)
}

func TestIngestPreExtractedAudio(t *testing.T) {
	idx := newFakeIndex()
	p, _ := newTestPipeline(t, idx, &fakeEmbedder{})

	src, err := p.Ingest(context.Background(), "alice", RawInput{
		Name: "talk.mp3",
		Type: source.TypeAudio,
		Text: "spoken words transcribed outside",
		TimeMarks: []chunker.TimeMark{
			{Offset: 0, At: 0},
			{Offset: 13, At: 30 * time.Second},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, source.TypeAudio, src.Type)

	chunks := idx.upserted["alice"]
	require.NotEmpty(t, chunks)
	span, ok := chunks[0].Position.(source.TimeSpan)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), span.Start)
}

func TestIngestEmbedFallbackSkipsBadChunk(t *testing.T) {
	idx := newFakeIndex()
	// Batch fails, then one chunk fails individually.
	text := "First sentence here. Second sentence follows here. Third one closes it out."
	emb := &fakeEmbedder{failBatch: true, failTexts: map[string]bool{}}

	p, _ := newTestPipeline(t, idx, emb)

	// Find out what the chunker produces so we can poison one chunk.
	ch, err := chunker.New(chunker.Config{TargetSize: 50, Overlap: 10, BoundaryWindow: 1})
	require.NoError(t, err)
	chunks := ch.Chunk(text, source.TypeText, chunker.Marks{})
	require.Greater(t, len(chunks), 1)
	emb.failTexts[chunks[0].Text] = true

	src, err := p.Ingest(context.Background(), "alice", textInput("doc", text))
	require.NoError(t, err)

	assert.Equal(t, len(chunks)-1, src.ChunkCount)
	for _, c := range idx.upserted["alice"] {
		assert.NotEqual(t, chunks[0].Text, c.Text)
	}
}

func TestIngestAllChunksFailToEmbed(t *testing.T) {
	idx := newFakeIndex()
	text := "Only sentence."
	emb := &fakeEmbedder{failBatch: true, failTexts: map[string]bool{text: true}}

	p, reg := newTestPipeline(t, idx, emb)

	_, err := p.Ingest(context.Background(), "alice", textInput("doc", text))
	assert.ErrorIs(t, err, ErrNoUsableContent)

	assert.Empty(t, reg.List("alice"))
}

func TestIngestUpsertFailureAborts(t *testing.T) {
	idx := newFakeIndex()
	idx.upsertErr = errors.New("store down")
	p, reg := newTestPipeline(t, idx, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), "alice", textInput("doc", "some text"))
	require.Error(t, err)

	// Reservation rolled back: name reusable, rollback delete issued.
	assert.Empty(t, reg.List("alice"))
	assert.Contains(t, idx.deleted, "alice/doc")

	idx.upsertErr = nil
	_, err = p.Ingest(context.Background(), "alice", textInput("doc", "some text"))
	assert.NoError(t, err)
}

func TestIngestAllOrderAndIsolation(t *testing.T) {
	idx := newFakeIndex()
	p, _ := newTestPipeline(t, idx, &fakeEmbedder{})

	inputs := []RawInput{
		textInput("a", "alpha text"),
		textInput("b", "   "),
		textInput("c", "gamma text"),
	}

	results := p.IngestAll(context.Background(), "alice", inputs)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "b", results[1].Name)
	assert.ErrorIs(t, results[1].Err, ErrNoUsableContent)
	assert.Equal(t, "c", results[2].Name)
	assert.NoError(t, results[2].Err)
}

func TestDefaultTextTitleFormat(t *testing.T) {
	title := DefaultTextTitle(time.Date(2026, 3, 14, 9, 41, 0, 0, time.UTC))
	assert.Equal(t, "Pasted text (09:41)", title)
}
