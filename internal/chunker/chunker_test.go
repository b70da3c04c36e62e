package chunker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

func newTestChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{TargetSize: 100, Overlap: 100})
	assert.Error(t, err)

	_, err = New(Config{TargetSize: 100, Overlap: -1})
	assert.Error(t, err)

	_, err = New(Config{TargetSize: 100, Overlap: 20, BoundaryWindow: 150})
	assert.Error(t, err)

	_, err = New(Config{})
	assert.NoError(t, err)

	// A small explicit target with the companions left unset must be
	// accepted; defaults scale instead of overshooting the target.
	_, err = New(Config{TargetSize: 150})
	assert.NoError(t, err)

	_, err = New(Config{TargetSize: 100, Overlap: 20})
	assert.NoError(t, err)
}

func TestConfigDefaultsScaleWithTarget(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, 1000, cfg.TargetSize)
	assert.Equal(t, 200, cfg.Overlap)
	assert.Equal(t, 120, cfg.BoundaryWindow)

	cfg = Config{TargetSize: 150}
	cfg.ApplyDefaults()
	assert.Equal(t, 30, cfg.Overlap)
	assert.Equal(t, 18, cfg.BoundaryWindow)
	require.NoError(t, cfg.Validate())

	cfg = Config{TargetSize: 100, Overlap: 20}
	cfg.ApplyDefaults()
	assert.Equal(t, 12, cfg.BoundaryWindow)
	require.NoError(t, cfg.Validate())
}

func TestChunkEmptyInput(t *testing.T) {
	c := newTestChunker(t, Config{})

	assert.Nil(t, c.Chunk("", source.TypeText, Marks{}))
	assert.Nil(t, c.Chunk("   \n\t  ", source.TypeText, Marks{}))
}

func TestChunkSingleWhenUnderTarget(t *testing.T) {
	c := newTestChunker(t, Config{TargetSize: 1000, Overlap: 200})

	text := "A short note that fits in one chunk."
	chunks := c.Chunk(text, source.TypeText, Marks{})
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, source.ByteSpan{Start: 0, End: len(text)}, chunks[0].Position)
}

func TestChunkDocumentPages(t *testing.T) {
	// 2400 characters over 3 pages of 800 each; target 1000, overlap 200.
	var b strings.Builder
	for b.Len() < 2400 {
		b.WriteString("word ")
	}
	text := b.String()[:2400]

	c := newTestChunker(t, Config{TargetSize: 1000, Overlap: 200, BoundaryWindow: 0})
	chunks := c.Chunk(text, source.TypeDocument, Marks{PageOffsets: []int{800, 1600}})

	require.Len(t, chunks, 3)

	assert.Equal(t, source.PageSpan{First: 1, Last: 2}, chunks[0].Position)
	assert.Equal(t, source.PageSpan{First: 2, Last: 3}, chunks[1].Position)
	assert.Equal(t, source.PageSpan{First: 3, Last: 3}, chunks[2].Position)

	// Consecutive chunks share the configured overlap.
	assert.Equal(t, chunks[0].End-200, chunks[1].Start)
	assert.Equal(t, chunks[1].End-200, chunks[2].Start)

	// Ordinals number chunks from zero in order.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestChunkCoversAllText(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("All work and no play makes Jack a dull boy. ")
	}
	text := b.String()

	c := newTestChunker(t, Config{TargetSize: 1000, Overlap: 200})
	chunks := c.Chunk(text, source.TypeText, Marks{})
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		// No gaps: every chunk starts inside or adjacent to its predecessor.
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestChunkDeterministic(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("Sentence number one. Sentence number two! Is this three? ")
	}
	text := b.String()

	c := newTestChunker(t, Config{})
	first := c.Chunk(text, source.TypeText, Marks{})
	second := c.Chunk(text, source.TypeText, Marks{})
	assert.Equal(t, first, second)
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	// A sentence ends comfortably inside the boundary window before the
	// 100-rune target; the cut should land right after it.
	text := strings.Repeat("x", 80) + ". " + strings.Repeat("y", 200)

	c := newTestChunker(t, Config{TargetSize: 100, Overlap: 10, BoundaryWindow: 30})
	chunks := c.Chunk(text, source.TypeText, Marks{})

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, strings.Repeat("x", 80)+".", strings.TrimRight(chunks[0].Text, " "))
}

func TestChunkHardCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("z", 250)

	c := newTestChunker(t, Config{TargetSize: 100, Overlap: 10, BoundaryWindow: 30})
	chunks := c.Chunk(text, source.TypeText, Marks{})

	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0].Text, 100)
}

func TestChunkDecimalPointNotABoundary(t *testing.T) {
	// "3.14159" has a period not followed by whitespace; it must not be
	// treated as a sentence end.
	text := strings.Repeat("a", 90) + "3.14159" + strings.Repeat("b", 100)

	c := newTestChunker(t, Config{TargetSize: 100, Overlap: 10, BoundaryWindow: 30})
	chunks := c.Chunk(text, source.TypeText, Marks{})

	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0].Text, 100)
}

func TestChunkAudioTimeSpans(t *testing.T) {
	var b strings.Builder
	for b.Len() < 300 {
		b.WriteString("spoken words here ")
	}
	text := b.String()[:300]

	marks := Marks{TimeMarks: []TimeMark{
		{Offset: 0, At: 0},
		{Offset: 100, At: 30 * time.Second},
		{Offset: 200, At: 60 * time.Second},
	}}

	c := newTestChunker(t, Config{TargetSize: 150, Overlap: 20, BoundaryWindow: 0})
	chunks := c.Chunk(text, source.TypeAudio, marks)

	require.GreaterOrEqual(t, len(chunks), 2)
	first, ok := chunks[0].Position.(source.TimeSpan)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), first.Start)
	assert.Equal(t, 30*time.Second, first.End)
}

func TestChunkMultibyteRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 30)

	c := newTestChunker(t, Config{TargetSize: 100, Overlap: 20})
	chunks := c.Chunk(text, source.TypeText, Marks{})

	require.NotEmpty(t, chunks)
	reconstructed := chunks[0].Text
	assert.Equal(t, text[chunks[0].Start:chunks[0].End], reconstructed)
	for _, ch := range chunks {
		assert.Equal(t, text[ch.Start:ch.End], ch.Text)
	}
}

func TestPageAt(t *testing.T) {
	offsets := []int{800, 1600}
	assert.Equal(t, 1, pageAt(offsets, 0))
	assert.Equal(t, 1, pageAt(offsets, 799))
	assert.Equal(t, 2, pageAt(offsets, 800))
	assert.Equal(t, 2, pageAt(offsets, 1599))
	assert.Equal(t, 3, pageAt(offsets, 1600))
	assert.Equal(t, 1, pageAt(nil, 500))
}
