package commands

import (
	"github.com/spf13/cobra"

	"github.com/draky-dev/draky/pkg/runtime"
)

// newCustomCommand wraps a discovered script. Arguments are passed to the script
// untouched, so flag parsing is disabled.
func newCustomCommand(a *app, c customCommand, rest []string) *cobra.Command {
	short := c.Help
	if short == "" {
		short = "Custom command (" + c.Path + ")"
	}

	return &cobra.Command{
		Use:                c.Name,
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Global flags before the command name were consumed already; rest keeps
			// everything after it verbatim, including a literal "--".
			if len(rest) > 0 && rest[0] == c.Name {
				args = rest[1:]
			}

			m, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}

			log := a.logger().Info().Str("command", c.Name).Str("script", c.Path)
			if !c.InContainer() {
				log.Msg("Running custom command on the host")
				return a.runner(m).RunHost(cmd.Context(), c.Path, args)
			}

			log.Str("service", c.Service).Msg("Running custom command in container")
			return a.runner(m).Exec(cmd.Context(), runtime.ExecRequest{
				Service:   c.Service,
				Script:    c.Path,
				Args:      args,
				Variables: m.Variables().Keys(),
				User:      c.User,
			})
		},
	}
}
