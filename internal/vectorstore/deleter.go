package vectorstore

import "context"

// SourceDeleter adapts an Index for callers that track the owner as a
// plain value rather than as context scope. It injects the owner into
// the context before delegating, so the backend's fail-closed check
// still runs against a real owner.
type SourceDeleter struct {
	index Index
}

// NewSourceDeleter wraps an index for owner-explicit source deletion.
func NewSourceDeleter(index Index) *SourceDeleter {
	return &SourceDeleter{index: index}
}

// DeleteBySource removes every chunk the owner indexed under the source.
func (d *SourceDeleter) DeleteBySource(ctx context.Context, owner, sourceName string) error {
	return d.index.DeleteBySource(ContextWithOwner(ctx, owner), sourceName)
}
