package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/draky-dev/draky/pkg/commands"
	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
	"github.com/draky-dev/draky/pkg/envbuild"
	"github.com/draky-dev/draky/pkg/runtime"
	"github.com/draky-dev/draky/pkg/telemetry"
)

// app carries the state of one dk invocation.
type app struct {
	deps
	info BuildInfo
	opts globalOptions
	tel  *telemetry.Telemetry

	// baseLogger is the run logger before project fields are attached.
	baseLogger *telemetry.Logger
}

// customCommand is a discovered custom command.
type customCommand = commands.Command

// environment captures the process environment, applying --env on top.
func (a *app) environment() config.Environment {
	env := config.NewEnvironment(a.environ)
	if a.opts.env != "" {
		env = env.With(config.VarEnvironment, a.opts.env)
	}
	return env
}

func (a *app) startDir() string {
	dir := a.opts.projectDir
	if dir == "" {
		return a.workDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.workDir, dir)
	}
	return dir
}

func (a *app) logger() *zerolog.Logger {
	l := a.tel.Logger.Zerolog()
	return &l
}

func (a *app) setupTelemetry() error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.info.Version

	if level, ok := a.environment().Lookup(config.VarLogLevel); ok && level != "" {
		cfg.Logging.Level = telemetry.ParseLevel(level).String()
	}
	if a.opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if a.opts.trace {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "stdout"
	}
	cfg.Metrics.TextfilePath = a.opts.metricsFile
	if env, ok := a.environment().Lookup(config.VarEnvironment); ok && env != "" {
		cfg.Environment = env
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return err
	}
	tel.Logger = telemetry.NewLoggerWithWriter(cfg.Logging, a.stderr).WithRunID(tel.RunID)
	a.tel = tel
	a.baseLogger = tel.Logger
	return nil
}

// commandRun is the root span and timer of one invocation.
type commandRun struct {
	span  trace.Span
	timer *telemetry.Timer
}

// startCommand opens the root span, named after the first argument.
func (a *app) startCommand(ctx context.Context, args []string) (context.Context, *commandRun) {
	name := "root"
	if len(args) > 0 {
		name = args[0]
	}
	ctx, span := a.tel.Tracer.StartCommandSpan(ctx, name, a.tel.RunID)
	return ctx, &commandRun{span: span, timer: telemetry.NewTimer()}
}

// finishCommand records the outcome of the executed command and flushes telemetry.
func (a *app) finishCommand(ctx context.Context, cmd *cobra.Command, run *commandRun, err error) {
	name := "dk"
	if cmd != nil {
		name = cmd.CommandPath()
	}

	status := "success"
	if err != nil {
		status = "error"
		a.tel.ObserveError(err)
		telemetry.RecordError(run.span, err)
	} else {
		telemetry.RecordSuccess(run.span)
	}
	run.span.End()
	a.tel.Metrics.RecordCommand(name, status, run.timer.Duration())

	if shutdownErr := a.tel.Shutdown(ctx); shutdownErr != nil {
		a.tel.Logger.WithError(shutdownErr).Warn("Failed to flush telemetry")
	}
}

// loadProject discovers and resolves the configuration of the current project.
func (a *app) loadProject(ctx context.Context) (*config.Manager, error) {
	op := telemetry.StartPhase(ctx, "discover")

	m := config.NewManager(config.ManagerOptions{
		Fs:          a.fs,
		StartDir:    a.startDir(),
		Environment: a.environment(),
		Logger:      a.tel.Logger.NewComponentLogger("config").Zerolog(),
	})
	err := m.Load(op.Ctx)
	op.End(err)
	if err != nil {
		return nil, err
	}

	a.tel.Metrics.SetFragmentsDiscovered(len(m.Fragments()))
	a.tel.Logger = a.baseLogger.WithProject(m.ProjectID(), m.Environment())
	return m, nil
}

// loadEnvironment loads the project and fails when the selected environment has
// no directory.
func (a *app) loadEnvironment(ctx context.Context) (*config.Manager, error) {
	m, err := a.loadProject(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := m.EnvironmentExists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("environment '%s' has not been found in '%s'", m.Environment(), m.Paths().EnvironmentsRoot()),
			nil,
		).WithCode(engine.ErrCodeNotFound)
	}
	return m, nil
}

func (a *app) builder(m *config.Manager) *envbuild.Builder {
	return envbuild.NewBuilder(envbuild.Options{
		Fs:     a.fs,
		Source: m,
		Logger: a.tel.Logger.Zerolog(),
	})
}

func (a *app) runner(m *config.Manager) *runtime.Runner {
	return runtime.NewRunner(runtime.Options{
		ProjectID:   m.ProjectID(),
		ComposePath: m.Paths().ComposePath(m.Environment()),
		Env:         a.environment().Environ(m.Variables()),
		Fs:          a.fs,
		Executor:    a.executor,
		Stdin:       a.stdin,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
		Logger:      a.tel.Logger.Zerolog(),
	})
}

// customCommands lists the custom commands of the current project. Outside a
// project, or when discovery fails, there are none.
func (a *app) customCommands(ctx context.Context) []customCommand {
	root, err := config.FindProjectRoot(a.fs, a.startDir())
	if err != nil {
		return nil
	}

	found, err := commands.NewFinder(a.fs, a.tel.Logger.Zerolog()).Find(ctx, config.NewPaths(root).ConfigRoot)
	if err != nil {
		a.tel.Logger.WithError(err).Warn("Failed to discover custom commands")
		return nil
	}
	return found
}
