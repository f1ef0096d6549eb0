package statestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/logwirehq/logwire/pkg/common/logctx"

	"github.com/pkg/errors"
)

type BufferedJSONFileConfig struct {
	Path         string        `json:"path" yaml:"path"`
	SyncInterval time.Duration `json:"sync_interval" yaml:"sync_interval"`
}

// BufferedJSONFile serves reads and updates from memory and syncs the state
// to the underlying JSON file on an interval. Stop performs a final flush.
type BufferedJSONFile[S any] struct {
	l    *slog.Logger
	c    BufferedJSONFileConfig
	file *JSONFile[S]

	mu      sync.Mutex
	current S

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewBufferedJSONFile[S any](c BufferedJSONFileConfig, initState InitFunc[S], opts ...Option) (*BufferedJSONFile[S], error) {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logctx.NopLogger()
	}
	logger = logger.With(
		slog.String("component", "buffered_json_file_store"),
		slog.String("path", c.Path),
	)

	file := NewJSONFile(JSONFileConfig{Path: c.Path}, initState, opts...)
	current, err := file.Load(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "cannot load current state from the backing file")
	}

	store := &BufferedJSONFile[S]{
		l:       logger,
		c:       c,
		file:    file,
		current: current,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go store.syncLoop()

	return store, nil
}

func (b *BufferedJSONFile[S]) Load(ctx context.Context) (S, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current, nil
}

func (b *BufferedJSONFile[S]) Update(ctx context.Context, updateF func(s *S) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := updateF(&b.current); err != nil {
		return errors.Wrap(err, "cannot apply update to state")
	}

	return nil
}

func (b *BufferedJSONFile[S]) Flush(ctx context.Context) error {
	return b.sync(ctx)
}

// Stop terminates the sync loop and flushes the in-memory state to the file.
func (b *BufferedJSONFile[S]) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return b.sync(ctx)
}

func (b *BufferedJSONFile[S]) sync(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.file.Update(ctx, func(s *S) error {
		*s = b.current
		return nil
	})

	return err
}

func (b *BufferedJSONFile[S]) syncLoop() {
	defer close(b.done)

	interval := b.c.SyncInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.sync(context.Background()); err != nil {
				b.l.Warn("cannot sync the state to the file", logctx.Error(err))
			}
		}
	}
}
