package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/draky-dev/draky/pkg/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved project configuration",
	}

	cmd.AddCommand(newConfigVarsCommand(a))
	cmd.AddCommand(newConfigFragmentsCommand(a))
	cmd.AddCommand(newConfigGraphCommand(a))

	return cmd
}

func newConfigVarsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vars",
		Short: "Print the variables of the active environment",
		Long: `Print the variables of the active environment as NAME=value lines, in the
order they were declared. DRAKY_* variables from the process environment are
applied last.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}

			for _, line := range m.Variables().Environ() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newConfigFragmentsCommand(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "fragments",
		Short: "List configuration fragments in resolution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}

			fragments := m.ActiveFragments()
			if all {
				fragments = m.Fragments()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPATH\tENVIRONMENTS")
			for _, f := range fragments {
				envs := "*"
				if !f.IsUniversal() {
					envs = strings.Join(f.Environments, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Kind, f.SourcePath, envs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include fragments of other environments")

	return cmd
}

func newConfigGraphCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the fragment dependency graph in DOT format",
		Example: `  # Render the graph with Graphviz
  dk config graph | dot -Tsvg > fragments.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}

			dot, err := config.DependencyGraph(m.ActiveFragments())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), dot)
			return nil
		},
	}
}
