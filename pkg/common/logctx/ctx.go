package logctx

import (
	"context"
	"log/slog"
)

type attrsKey struct{}

// ContextWith returns a context carrying attrs in addition to any attrs
// already stored. Routed records pick these up automatically.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	oldAttrs := Attrs(ctx)

	newAttrs := make([]slog.Attr, 0, len(oldAttrs)+len(attrs))
	newAttrs = append(newAttrs, oldAttrs...)
	newAttrs = append(newAttrs, attrs...)

	return context.WithValue(ctx, attrsKey{}, newAttrs)
}

// Attrs returns the attrs stored in ctx, or nil.
func Attrs(ctx context.Context) []slog.Attr {
	currentAttrs := ctx.Value(attrsKey{})
	if currentAttrs == nil {
		return nil
	}

	// cannot panic
	return currentAttrs.([]slog.Attr)
}
