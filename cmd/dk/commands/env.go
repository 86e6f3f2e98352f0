package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/draky-dev/draky/pkg/envbuild"
	"github.com/draky-dev/draky/pkg/runtime"
)

func newEnvCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Commands for environment management",
		Long: `Commands for environment management.

The environment is selected by DRAKY_ENVIRONMENT (default "dev") or --env, and
must have a directory under .draky/env.`,
	}

	cmd.AddCommand(newLifecycleCommand(a, "up", "Start the environment", (*runtime.Runner).Up))
	cmd.AddCommand(newLifecycleCommand(a, "stop", "Freeze the environment", (*runtime.Runner).Stop))
	cmd.AddCommand(newLifecycleCommand(a, "down", "Destroy the environment", (*runtime.Runner).Down))
	cmd.AddCommand(newEnvBuildCommand(a))
	cmd.AddCommand(newEnvWatchCommand(a))
	cmd.AddCommand(newEnvInitCommand(a))

	return cmd
}

func newLifecycleCommand(
	a *app,
	use string,
	short string,
	action func(*runtime.Runner, context.Context) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadEnvironment(cmd.Context())
			if err != nil {
				return err
			}

			a.tel.Logger.WithField("action", use).Info("Running environment action")
			return action(a.runner(m), cmd.Context())
		},
	}
}

func newEnvBuildCommand(a *app) *cobra.Command {
	var substituteVars bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the environment's compose file from its recipe",
		Long: `Build docker-compose.yml of the selected environment from its
docker-compose.recipe.yml: extended services are merged in, relative paths are
rebased and addon hooks alter the services using them.`,
		Example: `  # Build, keeping ${VAR} references for docker compose to resolve
  dk env build

  # Build with every ${VAR} replaced by its value
  dk env build --substitute-vars`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadEnvironment(cmd.Context())
			if err != nil {
				return err
			}

			c, err := a.builder(m).Build(cmd.Context(), substituteVars)
			if err != nil {
				return err
			}
			if c == nil {
				a.printWarning("No recipe found at " + m.Paths().RelativeToConfig(m.Paths().RecipePath(m.Environment())))
				return nil
			}

			a.printSuccess("Built " + m.Paths().RelativeToConfig(c.Path()))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&substituteVars, "substitute-vars", "s", false, "replace variable references with their values")

	return cmd
}

func newEnvWatchCommand(a *app) *cobra.Command {
	var substituteVars bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the environment whenever its configuration changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, err := a.loadEnvironment(ctx)
			if err != nil {
				return err
			}
			if _, err := a.builder(m).Build(ctx, substituteVars); err != nil {
				a.printError(err)
			}

			watcher := envbuild.NewWatcher(
				m.Paths().ConfigRoot,
				a.tel.Logger.Zerolog(),
				envbuild.WithIgnored(m.Paths().ComposePath(m.Environment())),
			)

			a.printSuccess("Watching " + m.Paths().ConfigRoot + " (Ctrl+C to stop)")
			return watcher.Watch(ctx, func(ctx context.Context) error {
				// Fragments may have changed, so configuration is resolved again.
				m, err := a.loadEnvironment(ctx)
				if err != nil {
					a.printError(err)
					return err
				}
				c, err := a.builder(m).Build(ctx, substituteVars)
				if err != nil {
					a.printError(err)
					return err
				}
				if c != nil {
					a.printSuccess("Rebuilt " + m.Paths().RelativeToConfig(c.Path()))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&substituteVars, "substitute-vars", "s", false, "replace variable references with their values")

	return cmd
}
