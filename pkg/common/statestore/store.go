package statestore

import (
	"context"
	"log/slog"
)

// InitFunc builds the initial state used when the backing storage is empty.
type InitFunc[S any] func() S

// Store persists a single mutable state value.
type Store[S any] interface {
	Load(ctx context.Context) (S, error)
	Update(ctx context.Context, updateF func(s *S) error) error
	Flush(ctx context.Context) error
}

type options struct {
	logger *slog.Logger
}

type Option interface {
	apply(*options)
}

type optionFunc func(o *options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
