package vectorstore

import (
	"context"
	"errors"
)

// Owner isolation errors - fail closed.
var (
	// ErrMissingOwner is returned when owner scope is missing from the
	// context. Fail closed: no cross-owner results, just an error.
	ErrMissingOwner = errors.New("owner missing from context")

	// ErrInvalidOwner is returned when the owner identifier is empty.
	ErrInvalidOwner = errors.New("invalid owner identifier")
)

// ownerContextKey is the context key for the owner identifier.
type ownerContextKey struct{}

// ContextWithOwner scopes a context to one owner. Every index operation
// requires it; a Search without owner scope is a correctness violation,
// not a quality issue, so the backends refuse to run without it.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext extracts the owner identifier from a context.
// Returns ErrMissingOwner if absent and ErrInvalidOwner if empty.
func OwnerFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(ownerContextKey{})
	if val == nil {
		return "", ErrMissingOwner
	}
	owner, ok := val.(string)
	if !ok {
		return "", ErrMissingOwner
	}
	if owner == "" {
		return "", ErrInvalidOwner
	}
	return owner, nil
}
