package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

func TestChunkID(t *testing.T) {
	c := Chunk{Source: "paper.pdf", Ordinal: 7}
	assert.Equal(t, "paper.pdf:000007", c.ID())

	// Same coordinates, same ID.
	assert.Equal(t, c.ID(), Chunk{Source: "paper.pdf", Ordinal: 7}.ID())
}

func TestSortHitsTieBreak(t *testing.T) {
	hits := []Hit{
		{Source: "b.pdf", Ordinal: 2, Score: 0.9},
		{Source: "a.pdf", Ordinal: 5, Score: 0.9},
		{Source: "a.pdf", Ordinal: 1, Score: 0.9},
		{Source: "c.pdf", Ordinal: 0, Score: 0.95},
		{Source: "z.pdf", Ordinal: 9, Score: 0.1},
	}
	sortHits(hits)

	assert.Equal(t, "c.pdf", hits[0].Source)
	assert.Equal(t, "a.pdf", hits[1].Source)
	assert.Equal(t, 1, hits[1].Ordinal)
	assert.Equal(t, "a.pdf", hits[2].Source)
	assert.Equal(t, 5, hits[2].Ordinal)
	assert.Equal(t, "b.pdf", hits[3].Source)
	assert.Equal(t, "z.pdf", hits[4].Source)
}

func TestSanitizeCollectionName(t *testing.T) {
	assert.Equal(t, "alice", sanitizeCollectionName("Alice"))
	assert.Equal(t, "user_42", sanitizeCollectionName("user-42"))
	assert.Equal(t, "a_b", sanitizeCollectionName("a b"))

	// Nothing survives sanitization: fall back to a hash so distinct
	// owners cannot collide on one collection.
	h1 := sanitizeCollectionName("日本語")
	h2 := sanitizeCollectionName("한국어")
	assert.NotEqual(t, h1, h2)
	assert.Contains(t, h1, "h_")
}

func TestHitFromMetadata(t *testing.T) {
	meta := map[string]string{
		metaSource:     "paper.pdf",
		metaSourceType: "document",
		metaOrdinal:    "3",
	}
	for k, v := range source.EncodePosition(source.PageSpan{First: 2, Last: 2}) {
		meta[k] = v
	}

	hit, err := hitFromMetadata("chunk text", 0.8, meta)
	assert.NoError(t, err)
	assert.Equal(t, "paper.pdf", hit.Source)
	assert.Equal(t, source.TypeDocument, hit.SourceType)
	assert.Equal(t, 3, hit.Ordinal)
	assert.Equal(t, "p. 2", hit.Position.String())

	_, err = hitFromMetadata("x", 0.5, map[string]string{metaOrdinal: "NaN"})
	assert.Error(t, err)
}
