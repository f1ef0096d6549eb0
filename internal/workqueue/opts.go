package workqueue

import "log/slog"

type options struct {
	l *slog.Logger
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
