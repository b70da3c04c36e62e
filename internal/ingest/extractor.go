// Package ingest turns raw source inputs into indexed, citable chunks.
//
// The pipeline is extract, chunk, embed, index. Each stage hands the next
// everything it needs, so a half-finished ingestion can always be rolled
// back without touching other sources.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// Sentinel errors for ingestion.
var (
	// ErrExtraction indicates text extraction from the raw input failed.
	ErrExtraction = errors.New("content extraction failed")

	// ErrNoUsableContent indicates extraction produced nothing worth
	// indexing. The source is not registered.
	ErrNoUsableContent = errors.New("no usable content")

	// ErrUnsupportedType indicates no extractor handles the input type.
	ErrUnsupportedType = errors.New("unsupported source type")
)

// RawInput is one source as submitted for ingestion.
type RawInput struct {
	// Name is the source name, unique within the owner's notebook.
	Name string

	// Type is the content kind.
	Type source.Type

	// Data is the raw bytes (documents, audio, video).
	Data []byte

	// Text is pre-extracted text (pasted text sources, or any type
	// whose extraction ran outside the pipeline).
	Text string

	// URL is the origin address (web sources).
	URL string

	// PageOffsets carry page boundaries alongside pre-extracted
	// document text.
	PageOffsets []int

	// TimeMarks carry timestamps alongside pre-extracted transcript
	// text (audio, video).
	TimeMarks []chunker.TimeMark
}

// ExtractResult is the output of text extraction.
type ExtractResult struct {
	// Text is the extracted plain text.
	Text string

	// Title is a display title when the input carries one.
	Title string

	// PageOffsets are byte offsets where pages 2..N begin (documents).
	PageOffsets []int

	// TimeMarks map byte offsets to media timestamps (audio, video).
	TimeMarks []chunker.TimeMark
}

// Extractor converts one kind of raw input into plain text with
// positional marks.
type Extractor interface {
	// Supports reports whether this extractor handles the input type.
	Supports(typ source.Type) bool

	// Extract produces text and positional marks from the raw input.
	Extract(ctx context.Context, input RawInput) (ExtractResult, error)
}

// TextExtractor handles pasted text. It is a pass-through with
// normalization: the text arrives already extracted.
type TextExtractor struct{}

// NewTextExtractor creates a pasted-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Supports reports true for text sources.
func (e *TextExtractor) Supports(typ source.Type) bool {
	return typ == source.TypeText
}

// Extract returns the pasted text unchanged apart from trimming.
func (e *TextExtractor) Extract(_ context.Context, input RawInput) (ExtractResult, error) {
	text := input.Text
	if text == "" {
		text = string(input.Data)
	}
	if strings.TrimSpace(text) == "" {
		return ExtractResult{}, ErrNoUsableContent
	}
	return ExtractResult{Text: text}, nil
}

var _ Extractor = (*TextExtractor)(nil)

// PreExtractedExtractor handles inputs whose text extraction already
// happened outside the pipeline: the caller submits plain text plus the
// positional marks their extractor produced. Documents keep page-level
// citations and media keeps timestamps without the server running any
// format-specific extraction itself.
type PreExtractedExtractor struct{}

// NewPreExtractedExtractor creates an extractor for externally
// extracted text.
func NewPreExtractedExtractor() *PreExtractedExtractor {
	return &PreExtractedExtractor{}
}

// Supports reports true for every valid source type. Register it after
// the type-specific extractors so they keep precedence.
func (e *PreExtractedExtractor) Supports(typ source.Type) bool {
	return typ.Valid()
}

// Extract passes the submitted text and marks through. Raw bytes
// without text are rejected: extraction from binary formats happens
// outside the server.
func (e *PreExtractedExtractor) Extract(_ context.Context, input RawInput) (ExtractResult, error) {
	if input.Text == "" && len(input.Data) > 0 {
		return ExtractResult{}, fmt.Errorf("%w: raw %s data, submit extracted text instead", ErrUnsupportedType, input.Type)
	}
	if strings.TrimSpace(input.Text) == "" {
		return ExtractResult{}, ErrNoUsableContent
	}
	return ExtractResult{
		Text:        input.Text,
		PageOffsets: input.PageOffsets,
		TimeMarks:   input.TimeMarks,
	}, nil
}

var _ Extractor = (*PreExtractedExtractor)(nil)

// DefaultTextTitle names a pasted-text source that arrived without one.
func DefaultTextTitle(now time.Time) string {
	return fmt.Sprintf("Pasted text (%s)", now.Format("15:04"))
}
