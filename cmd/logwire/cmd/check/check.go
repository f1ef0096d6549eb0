package check

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/logwirehq/logwire/internal/configuration"
	"github.com/logwirehq/logwire/internal/util"
)

var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "validates the config and its routing document",
	Long: heredoc.Doc(`
		Check loads the config, validates it and reports every violation of
		the routing document at once: unknown handler or filter references,
		unknown kinds, malformed logger names, kind-specific problems. No
		files or sockets are opened.
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configuration.ResolvePath()
		if err != nil {
			return err
		}

		c := configuration.Config{}
		if path == "" {
			loaded, err := configuration.Read()
			if err != nil {
				return err
			}
			c = loaded
		} else {
			loaded, err := configuration.ReadFile(path)
			if err != nil {
				return err
			}
			c = loaded
		}

		if err := configuration.Validate(&c); err != nil {
			var merr *multierror.Error
			if errors.As(err, &merr) {
				for _, violation := range merr.Errors {
					fmt.Println(" -", violation)
				}
				return errors.Errorf("document has %d violations", len(merr.Errors))
			}
			return err
		}

		util.PrintJson(map[string]any{
			"status":   "ok",
			"config":   path,
			"filters":  len(c.Logging.Filters),
			"handlers": len(c.Logging.Handlers),
			"loggers":  len(c.Logging.Loggers),
		})

		return nil
	},
}
