package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/draky-dev/draky/pkg/runtime"
)

// BuildInfo describes the dk binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	projectDir  string
	env         string
	verbose     bool
	trace       bool
	metricsFile string
}

func bindGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVarP(&opts.projectDir, "project-dir", "C", "", "run as if dk was started in this directory")
	fs.StringVarP(&opts.env, "env", "e", "", "environment to use instead of DRAKY_ENVIRONMENT")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&opts.trace, "trace", false, "print trace spans of the build pipeline to stderr")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
}

// deps are the process resources a command uses. Tests replace them.
type deps struct {
	fs       afero.Fs
	environ  []string
	workDir  string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	executor runtime.Executor
}

func osDeps() (deps, error) {
	wd, err := os.Getwd()
	if err != nil {
		return deps{}, err
	}
	return deps{
		fs:       afero.NewOsFs(),
		environ:  os.Environ(),
		workDir:  wd,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		executor: runtime.NewProcessExecutor(),
	}, nil
}

// Execute runs dk with the process arguments.
func Execute(ctx context.Context, info BuildInfo) error {
	d, err := osDeps()
	if err != nil {
		return err
	}
	return run(ctx, info, d, os.Args[1:])
}

// ExitCode maps an error returned by Execute to the process exit status.
func ExitCode(err error) int {
	return runtime.ExitCode(err)
}

func run(ctx context.Context, info BuildInfo, d deps, args []string) (err error) {
	a := &app{deps: d, info: info}

	// Global flags are read before cobra runs: they decide which project, and so
	// which custom commands, the command tree is built from.
	pre := pflag.NewFlagSet("dk", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetInterspersed(false)
	pre.SetOutput(io.Discard)
	bindGlobalFlags(pre, &a.opts)
	_ = pre.Parse(args)

	if err := a.setupTelemetry(); err != nil {
		return err
	}
	ctx = a.tel.WithContext(ctx)

	custom, rest := a.customCommands(ctx), pre.Args()
	root := newRootCommand(a, custom, rest)
	root.SetArgs(args)
	root.SetIn(d.stdin)
	root.SetOut(d.stdout)
	root.SetErr(d.stderr)

	ctx, cr := a.startCommand(ctx, rest)
	executed, err := root.ExecuteContextC(ctx)
	a.finishCommand(ctx, executed, cr, err)
	return err
}

func newRootCommand(a *app, custom []customCommand, rest []string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dk",
		Short: "draky - development environments for docker compose projects",
		Long: `draky builds and runs the docker compose environment of a project.

Configuration lives in the project's .draky directory:
  - *.dk.yml fragments define variables per environment
  - env/<name>/docker-compose.recipe.yml is expanded into docker-compose.yml
  - addons extend services through Starlark or WASM hooks
  - *.dk.sh scripts become dk commands`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", a.info.Version, a.info.Commit, a.info.BuildDate),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			a.printWarning(commandNotFound)
			return nil
		},
	}

	bindGlobalFlags(rootCmd.PersistentFlags(), &a.opts)

	rootCmd.AddCommand(newEnvCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))

	builtin := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		builtin[c.Name()] = true
	}
	builtin["help"], builtin["completion"] = true, true

	for _, c := range custom {
		if builtin[c.Name] {
			a.tel.Logger.WithField("command", c.Name).Warn("Custom command shadows a built-in command and is ignored")
			continue
		}
		rootCmd.AddCommand(newCustomCommand(a, c, rest))
	}

	return rootCmd
}
