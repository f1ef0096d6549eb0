package logctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type runIDKey struct{}

// RunID identifies one batch sweep across all records it produces.
type RunID string

func (r RunID) String() string {
	return string(r)
}

// NewRunID generates a fresh run id.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// WithRunID stores id in the context and in the log context, so every routed
// record emitted below carries run_id automatically.
func WithRunID(ctx context.Context, id RunID) context.Context {
	ctx = context.WithValue(ctx, runIDKey{}, id)
	return ContextWith(ctx, slog.String("run_id", id.String()))
}

// WithNewRunID is a shortcut for WithRunID(ctx, NewRunID()).
func WithNewRunID(ctx context.Context) context.Context {
	return WithRunID(ctx, NewRunID())
}

// RunIDFrom returns the run id stored in ctx, if any.
func RunIDFrom(ctx context.Context) (RunID, bool) {
	id, ok := ctx.Value(runIDKey{}).(RunID)
	return id, ok
}
