package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg StoreConfig) *Store {
	t.Helper()

	cfg.Path = filepath.Join(t.TempDir(), "memory.db")
	store, err := NewStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func userTurn(owner, session, text string) Turn {
	return Turn{SessionID: session, Owner: owner, Role: RoleUser, Text: text}
}

func assistantTurn(owner, session, text string, citations ...string) Turn {
	return Turn{SessionID: session, Owner: owner, Role: RoleAssistant, Text: text, Citations: citations}
}

func TestRememberAndRecall(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", "why is the sky blue?")))
	require.NoError(t, store.Remember(ctx, assistantTurn("alice", "s1", "Rayleigh scattering [1].", "physics.pdf")))

	recall, err := store.Recall(ctx, "alice", "s1")
	require.NoError(t, err)

	assert.Equal(t, "user: why is the sky blue?\nassistant: Rayleigh scattering [1].", recall)
}

func TestRememberValidation(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	err := store.Remember(ctx, Turn{SessionID: "s1", Role: RoleUser, Text: "no owner"})
	assert.Error(t, err)

	err = store.Remember(ctx, Turn{Owner: "alice", SessionID: "s1", Role: "system", Text: "bad role"})
	assert.Error(t, err)
}

func TestRecallEmptySession(t *testing.T) {
	store := newTestStore(t, StoreConfig{})

	recall, err := store.Recall(context.Background(), "alice", "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, recall)
}

func TestRecallSessionIsolation(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", "about cats")))
	require.NoError(t, store.Remember(ctx, userTurn("alice", "s2", "about dogs")))
	require.NoError(t, store.Remember(ctx, userTurn("bob", "s1", "about birds")))

	recall, err := store.Recall(ctx, "alice", "s1")
	require.NoError(t, err)
	assert.Contains(t, recall, "cats")
	assert.NotContains(t, recall, "dogs")
	assert.NotContains(t, recall, "birds")
}

func TestRecallTurnLimit(t *testing.T) {
	store := newTestStore(t, StoreConfig{MaxRecallTurns: 2})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", fmt.Sprintf("turn %d", i))))
	}

	recall, err := store.Recall(ctx, "alice", "s1")
	require.NoError(t, err)

	// Only the two most recent turns survive, oldest first.
	assert.Equal(t, "user: turn 4\nuser: turn 5", recall)
}

func TestRecallByteBudget(t *testing.T) {
	store := newTestStore(t, StoreConfig{MaxRecallBytes: 40})
	ctx := context.Background()

	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", strings.Repeat("x", 100))))
	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", "short")))

	recall, err := store.Recall(ctx, "alice", "s1")
	require.NoError(t, err)

	// The oversized old turn is dropped, the recent one kept.
	assert.Equal(t, "user: short", recall)
}

func TestHistory(t *testing.T) {
	store := newTestStore(t, StoreConfig{MaxRecallTurns: 1})
	ctx := context.Background()

	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", "one")))
	require.NoError(t, store.Remember(ctx, assistantTurn("alice", "s1", "two", "src.pdf")))
	require.NoError(t, store.Remember(ctx, userTurn("alice", "s1", "three")))

	// History ignores the recall turn limit.
	turns, err := store.History(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "one", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, []string{"src.pdf"}, turns[1].Citations)
	assert.Equal(t, "three", turns[2].Text)
	assert.False(t, turns[1].CreatedAt.IsZero())
}
