// Package source defines the source catalog and the positional metadata
// attached to indexed chunks.
package source

import (
	"fmt"
	"strconv"
	"time"
)

// Type identifies the kind of content a source was ingested from.
type Type string

const (
	// TypeDocument is paginated content (PDF, DOCX, and similar).
	TypeDocument Type = "document"
	// TypeAudio is transcribed audio content.
	TypeAudio Type = "audio"
	// TypeVideo is transcribed video content.
	TypeVideo Type = "video"
	// TypeWeb is scraped web page content.
	TypeWeb Type = "web"
	// TypeText is pasted plain text.
	TypeText Type = "text"
)

// Valid reports whether t is a known source type.
func (t Type) Valid() bool {
	switch t {
	case TypeDocument, TypeAudio, TypeVideo, TypeWeb, TypeText:
		return true
	}
	return false
}

// Position is the positional metadata variant carried by a chunk.
// The concrete shape depends on the source type: documents carry page
// spans, audio/video carry timestamp ranges, web/text carry byte spans.
type Position interface {
	// String renders the position for citations ("pp. 2-3", "00:01:30-00:02:10").
	String() string

	position()
}

// PageSpan is the page range a document chunk covers (1-based, inclusive).
// A chunk that straddles a page break is attributed to the page its start
// falls on through the page its last character falls on.
type PageSpan struct {
	First int
	Last  int
}

func (p PageSpan) position() {}

func (p PageSpan) String() string {
	if p.First == p.Last {
		return fmt.Sprintf("p. %d", p.First)
	}
	return fmt.Sprintf("pp. %d-%d", p.First, p.Last)
}

// TimeSpan is the timestamp range a transcript chunk covers.
type TimeSpan struct {
	Start time.Duration
	End   time.Duration
}

func (t TimeSpan) position() {}

func (t TimeSpan) String() string {
	return formatClock(t.Start) + "-" + formatClock(t.End)
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ByteSpan is the byte offset range a web/text chunk covers within the
// extracted text (half-open, [Start, End)).
type ByteSpan struct {
	Start int
	End   int
}

func (b ByteSpan) position() {}

func (b ByteSpan) String() string {
	return fmt.Sprintf("bytes %d-%d", b.Start, b.End)
}

// Metadata keys used to flatten a Position into index payloads.
const (
	posKindKey  = "pos_kind"
	posStartKey = "pos_start"
	posEndKey   = "pos_end"

	posKindPage = "page"
	posKindTime = "time"
	posKindByte = "byte"
)

// EncodePosition flattens a Position into string metadata so a citation
// can be reconstructed from the index alone, without the raw source.
func EncodePosition(p Position) map[string]string {
	switch v := p.(type) {
	case PageSpan:
		return map[string]string{
			posKindKey:  posKindPage,
			posStartKey: strconv.Itoa(v.First),
			posEndKey:   strconv.Itoa(v.Last),
		}
	case TimeSpan:
		return map[string]string{
			posKindKey:  posKindTime,
			posStartKey: strconv.FormatInt(int64(v.Start), 10),
			posEndKey:   strconv.FormatInt(int64(v.End), 10),
		}
	case ByteSpan:
		return map[string]string{
			posKindKey:  posKindByte,
			posStartKey: strconv.Itoa(v.Start),
			posEndKey:   strconv.Itoa(v.End),
		}
	default:
		return nil
	}
}

// DecodePosition reconstructs a Position from flattened metadata.
// Returns false if the metadata does not carry a recognizable position.
func DecodePosition(meta map[string]string) (Position, bool) {
	start, err := strconv.ParseInt(meta[posStartKey], 10, 64)
	if err != nil {
		return nil, false
	}
	end, err := strconv.ParseInt(meta[posEndKey], 10, 64)
	if err != nil {
		return nil, false
	}

	switch meta[posKindKey] {
	case posKindPage:
		return PageSpan{First: int(start), Last: int(end)}, true
	case posKindTime:
		return TimeSpan{Start: time.Duration(start), End: time.Duration(end)}, true
	case posKindByte:
		return ByteSpan{Start: int(start), End: int(end)}, true
	default:
		return nil, false
	}
}

// Source is one user-supplied unit of content in the catalog.
type Source struct {
	// Name is the user-visible identifier, unique per owner.
	Name string `json:"name"`

	// Type is the content kind the source was ingested from.
	Type Type `json:"type"`

	// Owner is the user the source belongs to.
	Owner string `json:"owner"`

	// ChunkCount is the number of chunks currently indexed for this source.
	ChunkCount int `json:"chunk_count"`

	// CreatedAt is when ingestion completed.
	CreatedAt time.Time `json:"created_at"`
}
