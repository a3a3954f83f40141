// Package ctxattr stores log attributes in a context, so they are attached to all messages logged with the context.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attributesCtxKey = ctxKey("attributes")

// ContextWith returns a context with the attributes merged with attributes already present in the context.
// If a key is already present, the new value wins.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	set := Attributes(ctx)
	merged := append(set.ToSlice(), attrs...)
	newSet := attribute.NewSet(merged...)
	return context.WithValue(ctx, attributesCtxKey, &newSet)
}

// Attributes returns attributes stored in the context, the set can be empty.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attributesCtxKey).(*attribute.Set); ok {
		return set
	}
	return attribute.EmptySet()
}
