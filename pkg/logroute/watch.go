package logroute

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/logwirehq/logwire/pkg/common/logctx"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const watchDebounce = 200 * time.Millisecond

// WatchFile blocks and re-applies the routing document whenever the file
// changes, until ctx is done. The parent directory is watched, so editors
// and config managers that replace the file through a rename are picked up.
// A document that fails to load or apply is logged and skipped; the applied
// table stays.
func (r *Registry) WatchFile(ctx context.Context, path string) error {
	return r.WatchFileWith(ctx, path, Load)
}

// WatchFileWith is WatchFile with a custom loader, for documents embedded
// in a larger config file.
func (r *Registry) WatchFileWith(ctx context.Context, path string, load func(path string) (Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot start routing document watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "cannot watch %q", dir)
	}

	l := r.diag.With(
		slog.String("component", "logroute_watcher"),
		slog.String("path", path),
	)
	l.Info("watching routing document")

	target := filepath.Clean(path)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("routing document watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if armed && !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(watchDebounce)
			armed = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("routing document watcher closed unexpectedly")
			}
			l.Warn("routing document watcher error", logctx.Error(err))

		case <-debounce.C:
			armed = false

			c, err := load(path)
			if err != nil {
				l.Warn("cannot load updated routing document", logctx.Error(err))
				continue
			}

			if err := r.Apply(ctx, c); err != nil {
				l.Warn("cannot apply updated routing document", logctx.Error(err))
				continue
			}

			l.Info("routing document reloaded")
		}
	}
}
