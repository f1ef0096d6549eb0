package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/logwirehq/logwire/cmd/logwire/cmd/check"
	"github.com/logwirehq/logwire/cmd/logwire/cmd/process"
	"github.com/logwirehq/logwire/cmd/logwire/cmd/route"
	"github.com/logwirehq/logwire/cmd/logwire/cmd/run"
	"github.com/logwirehq/logwire/internal/cmd/globflags"
	"github.com/logwirehq/logwire/internal/util"
)

var rootCmd = &cobra.Command{
	Use:              "logwire",
	Short:            "declarative log routing with a batteries-included batch daemon",
	Version:          "0.0.1",
	TraverseChildren: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cmd.ValidateFlagGroups(); err != nil {
			return err
		}
		if err := cmd.ValidateRequiredFlags(); err != nil {
			return err
		}

		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return nil
	},
}

func Execute() {
	ctx, cancel := util.CtxWithShutdown()
	defer cancel()

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.SilenceErrors = false
		cmd.SilenceUsage = false

		return err
	})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println()
		fmt.Printf("❌❌❌ Error occurred: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(
			&globflags.ConfigPath,
			"config",
			"c",
			"",
			heredoc.Doc(`
				path to the logwire config. Falls back to the LOGWIRE_CONFIG
				environment variable; when neither is set, built-in defaults
				are used.
			`),
		)

	rootCmd.AddCommand(check.CheckCmd)
	rootCmd.AddCommand(route.RouteCmd)
	rootCmd.AddCommand(process.ProcessCmd)
	rootCmd.AddCommand(run.RunCmd)
}
