package traceid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New returns a fresh trace id.
func New() string { return uuid.NewString() }

// Into returns a child context carrying the trace id.
func Into(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the trace id carried by ctx, or "" when absent.
func From(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
