package batch

import (
	"log/slog"
	"time"

	"github.com/logwirehq/logwire/pkg/ratelimit"
)

type options struct {
	l           *slog.Logger
	itemTimeout time.Duration
	pacer       *ratelimit.Limiter
}

type Option interface {
	apply(o *options)
}

type optionFunc func(o *options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		o.l = l
	})
}

// WithItemTimeout bounds each item's processing time. The deadline covers
// a single Process call, not the whole run.
func WithItemTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.itemTimeout = d
	})
}

// WithPacing makes the runner acquire a slot from lim before every item.
func WithPacing(lim *ratelimit.Limiter) Option {
	return optionFunc(func(o *options) {
		o.pacer = lim
	})
}
