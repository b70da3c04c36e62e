package api

import (
	"time"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/citation"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/memory"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
)

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	K         int    `json:"k,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Answer    string            `json:"answer"`
	Citations []citation.Record `json:"citations"`
	SessionID string            `json:"session_id"`
}

// IngestTextRequest is the request body for POST /api/v1/sources/text.
type IngestTextRequest struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// IngestSourceRequest is the request body for POST /api/v1/sources.
// The text arrives already extracted; page offsets and time marks carry
// the positional information the external extractor produced.
type IngestSourceRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	PageOffsets []int             `json:"page_offsets,omitempty"`
	TimeMarks   []TimeMarkRequest `json:"time_marks,omitempty"`
}

// TimeMarkRequest maps a byte offset in the text to a media timestamp.
type TimeMarkRequest struct {
	Offset    int     `json:"offset"`
	AtSeconds float64 `json:"at_seconds"`
}

func toTimeMarks(marks []TimeMarkRequest) []chunker.TimeMark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]chunker.TimeMark, len(marks))
	for i, m := range marks {
		out[i] = chunker.TimeMark{
			Offset: m.Offset,
			At:     time.Duration(m.AtSeconds * float64(time.Second)),
		}
	}
	return out
}

// SourceResponse describes one registered source.
type SourceResponse struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSourceResponse(src source.Source) SourceResponse {
	return SourceResponse{
		Name:       src.Name,
		Type:       string(src.Type),
		ChunkCount: src.ChunkCount,
		CreatedAt:  src.CreatedAt,
	}
}

// ListSourcesResponse is the response body for GET /api/v1/sources.
type ListSourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

// DeleteSourceResponse is the response body for DELETE /api/v1/sources/:name.
type DeleteSourceResponse struct {
	Name          string `json:"name"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// TurnResponse is one turn in a session transcript.
type TurnResponse struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the response body for GET /api/v1/sessions/:id/history.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []TurnResponse `json:"turns"`
}

func toTurnResponses(turns []memory.Turn) []TurnResponse {
	out := make([]TurnResponse, len(turns))
	for i, t := range turns {
		out[i] = TurnResponse{
			Role:      string(t.Role),
			Text:      t.Text,
			Citations: t.Citations,
			CreatedAt: t.CreatedAt,
		}
	}
	return out
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
