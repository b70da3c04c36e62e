// Package citation binds [n] markers in generated answers to the
// retrieved chunks they refer to.
package citation

import (
	"regexp"
	"strconv"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/retriever"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// markerPattern matches bracketed citation markers like [1] or [12].
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// maxExcerptLen bounds the excerpt carried on each citation record.
const maxExcerptLen = 300

// Record is one resolved citation in an answer.
type Record struct {
	// Marker is the citation number as it appears in the answer.
	Marker int `json:"marker"`

	// Source is the cited source name.
	Source string `json:"source"`

	// SourceType is the cited source's content kind.
	SourceType source.Type `json:"source_type"`

	// Position locates the cited chunk within its source ("p. 4",
	// "00:12:30-00:14:05").
	Position string `json:"position"`

	// Excerpt is the beginning of the cited chunk text.
	Excerpt string `json:"excerpt"`
}

// Bind resolves the [n] markers in an answer against the retrieved
// context that was prompted with.
//
// Markers that point inside the context keep their number and produce a
// record, ordered by first appearance and deduplicated. Markers that
// point outside it ([0], or beyond the last entry) are fabrications and
// are stripped from the text. Binding a clean answer is a no-op, so
// re-binding is safe.
func Bind(answer string, rc retriever.RetrievedContext) (string, []Record) {
	seen := make(map[int]bool)
	var records []Record

	bound := markerPattern.ReplaceAllStringFunc(answer, func(match string) string {
		n, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || n < 1 || n > len(rc.Entries) {
			return ""
		}
		if !seen[n] {
			seen[n] = true
			records = append(records, recordFor(n, rc.Entries[n-1]))
		}
		return match
	})

	return bound, records
}

func recordFor(marker int, entry retriever.Entry) Record {
	excerpt := entry.Hit.Text
	if len(excerpt) > maxExcerptLen {
		cut := maxExcerptLen
		for cut > 0 && excerpt[cut]&0xC0 == 0x80 {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	return Record{
		Marker:     marker,
		Source:     entry.Hit.Source,
		SourceType: entry.Hit.SourceType,
		Position:   entry.Hit.Position.String(),
		Excerpt:    excerpt,
	}
}
