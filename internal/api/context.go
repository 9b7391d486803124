package api

import (
	"context"
)

// userIDContextKey is the context key for the caller's user id.
type userIDContextKey struct{}

// DefaultUserID is used when no identity was resolved.
const DefaultUserID = "default"

// WithUserID returns a new context with the user id attached.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext extracts the user id from the context.
// Returns DefaultUserID if not present or empty.
func UserIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || id == "" {
		return DefaultUserID
	}
	return id
}
