package run

import (
	"context"
	"log/slog"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/logwirehq/logwire/internal/configuration"
	"github.com/logwirehq/logwire/internal/fxbuild"
	"github.com/logwirehq/logwire/internal/opsserver"
	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/logroute"
)

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "runs the routing daemon",
	Long: heredoc.Doc(`
		Run starts the daemon: the routing registry with the configured
		document, the periodic queue sweeper and the ops HTTP surface
		(/metrics, /healthz, /debug/routing). Unless watching is disabled in
		the config, the config file is watched and the routing document is
		re-applied on change; a broken edit is reported and skipped while
		the applied table stays.
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		constructors := fxbuild.GetConstructors()

		var e struct {
			fx.In

			Logger   *slog.Logger
			Registry *logroute.Registry
			Runtime  configuration.Runtime
		}

		app := fx.New(
			fx.Provide(constructors...),

			fx.Populate(&e),

			fx.Invoke(
				func(*opsserver.Server, *sweeper.Sweeper) {},
			),

			fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
				return &fxevent.SlogLogger{Logger: l}
			}),
		)

		if err := app.Start(ctx); err != nil {
			return errors.Wrap(err, "cannot start the application")
		}

		l := e.Logger

		confPath, err := configuration.ResolvePath()
		if err != nil {
			return err
		}
		if e.Runtime.Watch && confPath != "" {
			go watchConfig(ctx, e.Registry, l, confPath)
		}

		select {
		case <-ctx.Done():
			l.Info("got shutdown signal")
		case stopSignal := <-app.Wait():
			l.Info("application ended it's work", slog.String("message", stopSignal.String()))
		}

		tCtx, tCancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer tCancel()

		if err := app.Stop(tCtx); err != nil {
			return errors.Wrap(err, "cannot gracefully stop the application")
		}

		l.Info("application shuted down successfully!")
		return nil
	},
}

// watchConfig re-applies the logging section whenever the config file
// changes. Debug mode follows the file too, so it can be toggled without a
// restart.
func watchConfig(ctx context.Context, reg *logroute.Registry, l *slog.Logger, path string) {
	err := reg.WatchFileWith(ctx, path, func(p string) (logroute.Config, error) {
		c, err := configuration.ReadFile(p)
		if err != nil {
			return logroute.Config{}, err
		}
		if err := configuration.Validate(&c); err != nil {
			return logroute.Config{}, err
		}

		if reg.DebugMode() != c.Runtime.Debug {
			reg.SetDebugMode(c.Runtime.Debug)
		}

		return c.Logging, nil
	})
	if err != nil {
		l.Warn("config watcher stopped", logctx.Error(err))
	}
}
