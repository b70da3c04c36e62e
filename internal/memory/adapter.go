// Package memory persists conversation turns and recalls recent history
// for prompting.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the memory store cannot serve the request.
// Recall failures are degradable; a turn that cannot be persisted is
// logged and the answer still returned.
var ErrUnavailable = errors.New("memory store unavailable")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session.
type Turn struct {
	SessionID string    `json:"session_id"`
	Owner     string    `json:"owner"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Citations []string  `json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Adapter is the conversation memory contract.
type Adapter interface {
	// Remember persists a turn. Synchronous: when it returns nil the
	// turn is durable.
	Remember(ctx context.Context, turn Turn) error

	// Recall returns recent history for a session rendered as a prompt
	// block, bounded in turns and bytes. Empty string when the session
	// has no history.
	Recall(ctx context.Context, owner, sessionID string) (string, error)
}
