package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDeleter records DeleteBySource calls. Like the real backends it
// refuses to delete without an owner, so tests catch any path that
// loses the owner scope.
type fakeDeleter struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteBySource(_ context.Context, owner, sourceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner == "" {
		return errors.New("owner is required")
	}
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, owner+"/"+sourceName)
	return nil
}

func TestReserveCommitPublishes(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	res, err := r.Reserve("alice", "paper.pdf", TypeDocument)
	require.NoError(t, err)

	// Pending reservations are invisible.
	assert.Empty(t, r.List("alice"))
	_, ok := r.Get("alice", "paper.pdf")
	assert.False(t, ok)

	src := res.Commit(12)
	assert.Equal(t, "paper.pdf", src.Name)
	assert.Equal(t, 12, src.ChunkCount)
	assert.False(t, src.CreatedAt.IsZero())

	got, ok := r.Get("alice", "paper.pdf")
	require.True(t, ok)
	assert.Equal(t, src, got)
	assert.Equal(t, 1, r.Count("alice"))
}

func TestReserveDuplicateName(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	res, err := r.Reserve("alice", "notes", TypeText)
	require.NoError(t, err)

	// Duplicate even while the first is still pending.
	_, err = r.Reserve("alice", "notes", TypeText)
	assert.ErrorIs(t, err, ErrSourceExists)

	res.Commit(1)
	_, err = r.Reserve("alice", "notes", TypeText)
	assert.ErrorIs(t, err, ErrSourceExists)

	// Same name under a different owner is fine.
	res2, err := r.Reserve("bob", "notes", TypeText)
	require.NoError(t, err)
	res2.Commit(1)
}

func TestReserveInvalid(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	_, err := r.Reserve("", "notes", TypeText)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = r.Reserve("alice", "", TypeText)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = r.Reserve("alice", "notes", Type("spreadsheet"))
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestAbortRollsBackAndFreesName(t *testing.T) {
	deleter := &fakeDeleter{}
	r := NewRegistry(deleter, zap.NewNop())

	res, err := r.Reserve("alice", "broken.pdf", TypeDocument)
	require.NoError(t, err)

	res.Abort(context.Background())

	assert.Equal(t, []string{"alice/broken.pdf"}, deleter.deleted)
	assert.Equal(t, 0, r.Count("alice"))

	// Name is reusable after the abort.
	res2, err := r.Reserve("alice", "broken.pdf", TypeDocument)
	require.NoError(t, err)
	res2.Commit(3)
}

func TestDeleteRemovesChunksAndEntry(t *testing.T) {
	deleter := &fakeDeleter{}
	r := NewRegistry(deleter, zap.NewNop())

	res, err := r.Reserve("alice", "talk.mp3", TypeAudio)
	require.NoError(t, err)
	res.Commit(7)

	n, err := r.Delete(context.Background(), "alice", "talk.mp3")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []string{"alice/talk.mp3"}, deleter.deleted)
	assert.Equal(t, 0, r.Count("alice"))
}

func TestDeleteNotFound(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	_, err := r.Delete(context.Background(), "alice", "ghost")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestDeleteIndexFailureKeepsEntry(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("index down")}
	r := NewRegistry(deleter, zap.NewNop())

	res, err := r.Reserve("alice", "notes", TypeText)
	require.NoError(t, err)
	res.Commit(2)

	_, err = r.Delete(context.Background(), "alice", "notes")
	require.Error(t, err)

	// Failed deletion leaves the source listed; nothing was removed.
	_, ok := r.Get("alice", "notes")
	assert.True(t, ok)
}

func TestListOrderedByCreation(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(2 * time.Minute), base, base.Add(time.Minute)}
	idx := 0
	timeNow = func() time.Time { t := times[idx]; idx++; return t }
	defer func() { timeNow = time.Now }()

	for _, name := range []string{"c", "a", "b"} {
		res, err := r.Reserve("alice", name, TypeText)
		require.NoError(t, err)
		res.Commit(1)
	}

	sources := r.List("alice")
	require.Len(t, sources, 3)
	assert.Equal(t, "a", sources[0].Name)
	assert.Equal(t, "b", sources[1].Name)
	assert.Equal(t, "c", sources[2].Name)
}

func TestListUnknownOwnerEmpty(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())
	assert.Empty(t, r.List("nobody"))
	assert.Equal(t, 0, r.Count("nobody"))
}

func TestConcurrentReserveSameName(t *testing.T) {
	r := NewRegistry(&fakeDeleter{}, zap.NewNop())

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make(chan *Reservation, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := r.Reserve("alice", "contested", TypeText); err == nil {
				wins <- res
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []*Reservation
	for res := range wins {
		winners = append(winners, res)
	}
	require.Len(t, winners, 1)
	winners[0].Commit(1)
	assert.Equal(t, 1, r.Count("alice"))
}
