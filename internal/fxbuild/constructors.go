package fxbuild

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/fx"

	"github.com/logwirehq/logwire/internal/configuration"
	"github.com/logwirehq/logwire/internal/fxutil"
	"github.com/logwirehq/logwire/internal/opsserver"
	"github.com/logwirehq/logwire/internal/registrar"
	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/internal/workqueue"
	"github.com/logwirehq/logwire/pkg/common/statestore"
	"github.com/logwirehq/logwire/pkg/logroute"
)

// NewRegistry builds the routing registry and applies the configured
// document. It closes last on shutdown, after every component that logs
// through it.
func NewRegistry(c logroute.Config, rt configuration.Runtime, lc fx.Lifecycle) (*logroute.Registry, error) {
	reg := logroute.New(logroute.WithDebugMode(rt.Debug))
	if err := reg.Apply(context.Background(), c); err != nil {
		return nil, errors.Wrap(err, "cannot apply routing document")
	}

	lc.Append(fx.StopHook(func() error {
		return reg.Close()
	}))

	return reg, nil
}

// NewLogger is the application-wide logger front. Components scope it with
// their own component attr.
func NewLogger(reg *logroute.Registry) *slog.Logger {
	return reg.Get("logwire")
}

func NewQueueStore(c workqueue.Config, l *slog.Logger, lc fx.Lifecycle) (*statestore.BufferedJSONFile[workqueue.Snapshot], error) {
	store, err := statestore.NewBufferedJSONFile[workqueue.Snapshot](
		statestore.BufferedJSONFileConfig{
			Path:         c.Path,
			SyncInterval: c.SyncInterval.AsDuration(),
		},
		workqueue.InitialSnapshot,
		statestore.WithLogger(l),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open work queue storage")
	}

	lc.Append(fx.StopHook(store.Stop))

	return store, nil
}

func NewQueue(store statestore.Store[workqueue.Snapshot], l *slog.Logger) *workqueue.Queue {
	return workqueue.New(store, workqueue.WithLogger(l))
}

// CoreConstructors wires config, routing, logging and the work queue. One-shot
// commands build on it directly so no background loops get started.
func CoreConstructors() []interface{} {
	return append(
		registrar.GetRegistered(),
		configuration.Read,
		NewRegistry,
		NewLogger,
		fxutil.AsIface[statestore.Store[workqueue.Snapshot]](NewQueueStore),
		NewQueue,
	)
}

func GetConstructors() []interface{} {
	return append(
		CoreConstructors(),
		sweeper.NewFX,
		opsserver.NewFX,
	)
}
