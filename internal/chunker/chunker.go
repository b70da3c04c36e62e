// Package chunker splits extracted source text into overlapping,
// positionally tagged chunks for embedding and indexing.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// Config holds chunking parameters. Sizes are measured in characters
// (runes) so chunk lengths are comparable across every source type.
type Config struct {
	// TargetSize is the chunk size the splitter aims for.
	// Default: 1000 characters.
	TargetSize int `koanf:"target_size"`

	// Overlap is how many characters consecutive chunks share.
	// Default: 20% of TargetSize (200 for the default target).
	Overlap int `koanf:"overlap"`

	// BoundaryWindow is how far back from the target cut the splitter
	// looks for a sentence boundary before falling back to a hard cut.
	// Default: 12% of TargetSize (120 for the default target).
	BoundaryWindow int `koanf:"boundary_window"`
}

// ApplyDefaults sets default values for unset fields. Overlap and
// BoundaryWindow scale with TargetSize, so a config that only sets a
// small target still validates.
func (c *Config) ApplyDefaults() {
	if c.TargetSize == 0 {
		c.TargetSize = 1000
	}
	if c.Overlap == 0 {
		c.Overlap = c.TargetSize / 5
	}
	if c.BoundaryWindow == 0 {
		c.BoundaryWindow = c.TargetSize * 12 / 100
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("target size must be positive, got %d", c.TargetSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize {
		return fmt.Errorf("overlap must be in [0, target size), got %d", c.Overlap)
	}
	if c.BoundaryWindow < 0 || c.BoundaryWindow >= c.TargetSize {
		return fmt.Errorf("boundary window must be in [0, target size), got %d", c.BoundaryWindow)
	}
	return nil
}

// TimeMark associates a byte offset in the extracted text with the
// timestamp the transcript reached at that offset.
type TimeMark struct {
	Offset int
	At     time.Duration
}

// Marks carries the boundary offsets an extractor discovered in the raw
// source. PageOffsets holds the byte offset each page starts at (page 1
// starts at 0 implicitly). TimeMarks holds transcript timestamps; a mark
// at offset 0 anchors the start.
type Marks struct {
	PageOffsets []int
	TimeMarks   []TimeMark
}

// Chunk is one bounded span of extracted text.
type Chunk struct {
	// Ordinal is the chunk's 0-based position within its source.
	Ordinal int

	// Text is the chunk content.
	Text string

	// Start and End are byte offsets into the extracted text (half-open).
	Start int
	End   int

	// Position is the source-type-specific location tag.
	Position source.Position
}

// Chunker splits text deterministically: the same input always produces
// the same chunk boundaries.
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given configuration.
func New(cfg Config) (*Chunker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Chunker{cfg: cfg}, nil
}

// sentence terminators considered natural cut points.
func isBoundaryRune(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// Chunk splits text into overlapping chunks tagged with positional
// metadata for the given source type. Empty (or all-whitespace) input
// yields no chunks and no error; input at or under the target size
// yields exactly one chunk.
func (c *Chunker) Chunk(text string, typ source.Type, marks Marks) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	// byteAt[i] is the byte offset of rune i; byteAt[len] is len(text).
	byteAt := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		byteAt[i] = off
		off += len(string(r))
	}
	byteAt[len(runes)] = len(text)

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.cfg.TargetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.adjustToBoundary(runes, start, end)
		}

		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
			Start:   byteAt[start],
			End:     byteAt[end],
			Position: positionFor(typ, byteAt[start], byteAt[end], marks),
		})

		if end == len(runes) {
			break
		}
		next := end - c.cfg.Overlap
		if next <= start {
			// Guard against a boundary cut shorter than the overlap.
			next = start + 1
		}
		start = next
	}

	return chunks
}

// adjustToBoundary moves the cut back to the last sentence boundary
// inside the lookahead window, or keeps the hard cut if none exists.
// A boundary rune must be followed by whitespace to count, so decimal
// points and abbreviations mid-sentence do not trigger a cut.
func (c *Chunker) adjustToBoundary(runes []rune, start, end int) int {
	low := end - c.cfg.BoundaryWindow
	if low <= start {
		low = start + 1
	}
	for i := end - 1; i >= low; i-- {
		if !isBoundaryRune(runes[i]) {
			continue
		}
		if runes[i] == '\n' {
			return i + 1
		}
		if i+1 < len(runes) && isSpace(runes[i+1]) {
			return i + 1
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// positionFor computes the positional tag for a chunk spanning
// [start, end) bytes of the extracted text. Boundary-straddling offsets
// attribute deterministically to the page/timestamp their start falls on.
func positionFor(typ source.Type, start, end int, marks Marks) source.Position {
	switch typ {
	case source.TypeDocument:
		return source.PageSpan{
			First: pageAt(marks.PageOffsets, start),
			Last:  pageAt(marks.PageOffsets, end-1),
		}
	case source.TypeAudio, source.TypeVideo:
		return source.TimeSpan{
			Start: timeAt(marks.TimeMarks, start),
			End:   timeAt(marks.TimeMarks, end-1),
		}
	default:
		return source.ByteSpan{Start: start, End: end}
	}
}

// pageAt returns the 1-based page number containing the byte offset.
// pageOffsets holds the start offset of page 2 onward; everything before
// the first entry is page 1.
func pageAt(pageOffsets []int, offset int) int {
	return 1 + sort.SearchInts(pageOffsets, offset+1)
}

// timeAt returns the timestamp of the last mark at or before the offset.
func timeAt(timeMarks []TimeMark, offset int) time.Duration {
	var at time.Duration
	for _, m := range timeMarks {
		if m.Offset > offset {
			break
		}
		at = m.At
	}
	return at
}
