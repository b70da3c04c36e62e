package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors for catalog operations.
var (
	// ErrSourceExists is returned when an owner already has a source with
	// the requested name, including one whose ingestion is still in flight.
	ErrSourceExists = errors.New("source already exists")

	// ErrSourceNotFound is returned when the named source is not in the
	// owner's catalog.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidSource indicates a source with a missing name, owner, or
	// unknown type.
	ErrInvalidSource = errors.New("invalid source")
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// ChunkDeleter removes every indexed chunk belonging to a source.
// The owner is passed explicitly; implementations scope the deletion to
// that owner and refuse to run without one.
type ChunkDeleter interface {
	DeleteBySource(ctx context.Context, owner, sourceName string) error
}

// Registry is the per-owner catalog of ingested sources.
//
// The registry owns the chunk-count invariant: a source appears only after
// its chunks are indexed (Reservation.Commit), and disappears only after
// its chunks are removed from the index (Delete). Each entry carries its
// own lock so deleting one source never blocks work on another.
type Registry struct {
	mu     sync.RWMutex
	owners map[string]map[string]*entry

	index  ChunkDeleter
	logger *zap.Logger
}

type entry struct {
	mu      sync.Mutex
	source  Source
	pending bool
}

// NewRegistry creates a registry backed by the given chunk deleter.
func NewRegistry(index ChunkDeleter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		owners: make(map[string]map[string]*entry),
		index:  index,
		logger: logger,
	}
}

// Reservation holds a source name while its ingestion is running.
// Exactly one of Commit or Abort must be called.
type Reservation struct {
	registry *Registry
	entry    *entry
	done     bool
}

// Reserve claims a source name for an owner before ingestion starts, so
// concurrent uploads of the same name race on the catalog rather than on
// the index. Returns ErrSourceExists if the name is taken.
func (r *Registry) Reserve(owner, name string, typ Type) (*Reservation, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and name are required", ErrInvalidSource)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSource, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.owners[owner]
	if !ok {
		byName = make(map[string]*entry)
		r.owners[owner] = byName
	}
	if _, taken := byName[name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrSourceExists, name)
	}

	e := &entry{
		source: Source{
			Name:  name,
			Type:  typ,
			Owner: owner,
		},
		pending: true,
	}
	byName[name] = e

	return &Reservation{registry: r, entry: e}, nil
}

// Commit publishes the reserved source with its final chunk count.
// From this point on the source is visible to List, Get, and Delete.
func (res *Reservation) Commit(chunkCount int) Source {
	if res.done {
		panic("source: reservation already resolved")
	}
	res.done = true

	res.entry.mu.Lock()
	defer res.entry.mu.Unlock()

	res.entry.source.ChunkCount = chunkCount
	res.entry.source.CreatedAt = timeNow()
	res.entry.pending = false

	return res.entry.source
}

// Abort releases the reservation and removes any chunks that were indexed
// before the failure, so a half-ingested source never becomes visible.
func (res *Reservation) Abort(ctx context.Context) {
	if res.done {
		panic("source: reservation already resolved")
	}
	res.done = true

	src := res.entry.source
	if res.registry.index != nil {
		if err := res.registry.index.DeleteBySource(ctx, src.Owner, src.Name); err != nil {
			res.registry.logger.Warn("rollback of partially indexed source failed",
				zap.String("owner", src.Owner),
				zap.String("source", src.Name),
				zap.Error(err),
			)
		}
	}

	res.registry.remove(src.Owner, src.Name)
}

// List returns the owner's committed sources ordered by creation time,
// then name. An owner with no sources gets an empty slice, not an error.
func (r *Registry) List(owner string) []Source {
	// Snapshot entries first: entry locks are never taken while holding
	// the registry lock, because Delete acquires them in the other order.
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.owners[owner]))
	for _, e := range r.owners[owner] {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sources := make([]Source, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.pending {
			sources = append(sources, e.source)
		}
		e.mu.Unlock()
	}

	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].CreatedAt.Equal(sources[j].CreatedAt) {
			return sources[i].CreatedAt.Before(sources[j].CreatedAt)
		}
		return sources[i].Name < sources[j].Name
	})
	return sources
}

// Get looks up one committed source by name.
func (r *Registry) Get(owner, name string) (Source, bool) {
	r.mu.RLock()
	e, ok := r.owners[owner][name]
	r.mu.RUnlock()
	if !ok {
		return Source{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending {
		return Source{}, false
	}
	return e.source, true
}

// Count returns the number of committed sources for an owner.
func (r *Registry) Count(owner string) int {
	return len(r.List(owner))
}

// Delete removes a source and all of its indexed chunks. The entry lock is
// held across the index deletion, so a concurrent Delete or re-ingestion of
// the same name serializes behind it; the index backends make the chunk
// removal itself atomic with respect to in-flight searches. Returns the
// number of chunks removed.
func (r *Registry) Delete(ctx context.Context, owner, name string) (int, error) {
	r.mu.RLock()
	e, ok := r.owners[owner][name]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending {
		return 0, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}

	if r.index != nil {
		if err := r.index.DeleteBySource(ctx, owner, name); err != nil {
			return 0, fmt.Errorf("deleting chunks for source %q: %w", name, err)
		}
	}

	r.remove(owner, name)

	r.logger.Info("source deleted",
		zap.String("owner", owner),
		zap.String("source", name),
		zap.Int("chunks", e.source.ChunkCount),
	)

	return e.source.ChunkCount, nil
}

// remove drops the catalog entry, pruning the owner map when it empties.
func (r *Registry) remove(owner, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.owners[owner], name)
	if len(r.owners[owner]) == 0 {
		delete(r.owners, owner)
	}
}
