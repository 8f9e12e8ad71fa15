package tenant

import (
	"context"
)

// DefaultKey is the reserved tenant used when a request carries no subdomain.
// It maps to the shared "public" schema.
const DefaultKey = "public"

// Space captures the resolved tenant routing metadata for a request.
// It is attached to the context once by the tenant middleware and never mutated afterwards.
type Space struct {
	// Key is the leftmost host label exactly as it was resolved (lowercased).
	Key string
	// SchemaName is the PostgreSQL schema holding the tenant's tables.
	SchemaName string
}

// IsDefault reports whether the space points at the shared public schema.
func (s Space) IsDefault() bool {
	return s.SchemaName == DefaultKey
}

// Default returns the Space used for requests without a tenant subdomain.
func Default() Space {
	return Space{Key: DefaultKey, SchemaName: DefaultKey}
}

type ctxKey string

const spaceKey ctxKey = "APPRAISAL_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}

// FromContextOrDefault returns the Space stored on the context, or the public space when absent.
func FromContextOrDefault(ctx context.Context) Space {
	if space, ok := FromContext(ctx); ok {
		return space
	}
	return Default()
}
