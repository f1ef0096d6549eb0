package process

import (
	"context"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/logwirehq/logwire/internal/cmd/globflags"
	"github.com/logwirehq/logwire/internal/fxbuild"
	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/internal/util"
)

func init() {
	ProcessCmd.Flags().
		StringVarP(&globflags.JobName, "job", "j", "", "narrow the sweep to one job's items")
}

var ProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "runs one sweep over the pending work items",
	Long: heredoc.Doc(`
		Process drains the pending work queue once and exits. Item failures
		are contained exactly as in the daemon: they are recorded on the
		queue, reported through the routing document and never abort the
		sweep.
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		fxOpts := []fx.Option{
			fx.Provide(
				append(fxbuild.CoreConstructors(), sweeper.New)...,
			),
			fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
		}

		var s *sweeper.Sweeper
		fxOpts = append(fxOpts, fx.Invoke(func(sw *sweeper.Sweeper) {
			s = sw
		}))

		app := fx.New(fxOpts...)
		if err := app.Start(cmd.Context()); err != nil {
			return errors.Wrap(err, "cannot build the app to run the sweep")
		}

		stats, sweepErr := s.Sweep(cmd.Context(), globflags.JobName)

		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			return errors.Wrap(err, "cannot gracefully stop the application")
		}

		if sweepErr != nil {
			return sweepErr
		}

		util.PrintJson(stats)
		return nil
	},
}
