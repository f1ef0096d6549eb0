package route

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/logwirehq/logwire/internal/cmd/globflags"
	"github.com/logwirehq/logwire/internal/configuration"
	"github.com/logwirehq/logwire/internal/util"
	"github.com/logwirehq/logwire/pkg/logroute"
)

func init() {
	RouteCmd.Flags().
		StringVarP(&globflags.LoggerName, "logger", "l", "", "dotted name of the logger the record is logged on")
	RouteCmd.MarkFlagRequired("logger")

	RouteCmd.Flags().
		StringVar(&globflags.LevelName, "level", "", "severity of the record: debug, info, warning, error or critical")
	RouteCmd.MarkFlagRequired("level")

	RouteCmd.Flags().
		BoolVar(&globflags.Debug, "debug", false, "resolve as if debug mode was on")
}

var RouteCmd = &cobra.Command{
	Use:   "route",
	Short: "shows which handlers would receive a record",
	Long: heredoc.Doc(`
		Route resolves a hypothetical record against the configured routing
		document and prints the handlers that would receive it, in delivery
		order. Stateful filters are probed, not consumed: resolving does not
		spend throttle allowances.

		Example:

		    logwire route -c logwire.yaml --logger app.batch --level error
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := configuration.Read()
		if err != nil {
			return err
		}

		lvl, err := logroute.ParseLevel(globflags.LevelName)
		if err != nil {
			return err
		}

		debug := c.Runtime.Debug || globflags.Debug

		reg := logroute.New(logroute.WithDebugMode(debug))
		defer reg.Close()

		if err := reg.Apply(cmd.Context(), c.Logging); err != nil {
			return errors.Wrap(err, "cannot apply routing document")
		}

		handlers := reg.Resolve(globflags.LoggerName, lvl)
		if handlers == nil {
			handlers = []string{}
		}

		util.PrintJson(map[string]any{
			"logger":   globflags.LoggerName,
			"level":    lvl.String(),
			"debug":    debug,
			"handlers": handlers,
		})

		return nil
	},
}
