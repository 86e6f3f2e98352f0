package envbuild

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/draky-dev/draky/pkg/compose"
	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/hooks"
	"github.com/draky-dev/draky/pkg/telemetry"
)

// Source is the resolved configuration a build reads from. *config.Manager
// satisfies it after Load.
type Source interface {
	Paths() config.Paths
	Environment() string
	Variables() *config.VariableSet
	Addons() []config.Addon
}

// Options configures a Builder.
type Options struct {
	// Fs is the filesystem holding the project. Defaults to the OS filesystem.
	Fs afero.Fs

	// Source provides paths, variables and addons of the active environment.
	Source Source

	// Loader finds addon hooks. Defaults to Starlark hooks, then WASM hooks.
	Loader hooks.Loader

	// HookTimeout bounds a single hook invocation. Zero uses hooks.DefaultTimeout.
	HookTimeout time.Duration

	// Logger for build events.
	Logger zerolog.Logger
}

// Builder turns the recipe of the active environment into its compose file.
type Builder struct {
	fs      afero.Fs
	source  Source
	loader  hooks.Loader
	timeout time.Duration
	logger  zerolog.Logger
}

// NewBuilder creates a new builder.
func NewBuilder(opts Options) *Builder {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	loader := opts.Loader
	if loader == nil {
		loader = hooks.NewChainLoader(hooks.NewStarlarkLoader(fs), hooks.NewWASMLoader(fs))
	}

	timeout := opts.HookTimeout
	if timeout <= 0 {
		timeout = hooks.DefaultTimeout
	}

	return &Builder{
		fs:      fs,
		source:  opts.Source,
		loader:  loader,
		timeout: timeout,
		logger:  opts.Logger.With().Str("component", "envbuild").Logger(),
	}
}

// Build expands the recipe of the active environment, runs addon hooks on it and
// writes the result next to the recipe. It returns nil without error when the
// environment has no recipe.
func (b *Builder) Build(ctx context.Context, substituteVars bool) (*compose.Compose, error) {
	paths := b.source.Paths()
	env := b.source.Environment()
	recipePath := paths.RecipePath(env)
	outputPath := paths.ComposePath(env)
	vars := b.source.Variables()

	recipe, err := b.loadRecipe(ctx, recipePath)
	if err != nil || recipe == nil {
		return nil, err
	}

	c, uncleaned, err := b.expand(ctx, recipe, recipePath, outputPath, vars)
	if err != nil {
		return nil, err
	}

	if err := b.applyHooks(ctx, c, uncleaned, vars); err != nil {
		return nil, err
	}

	c.SetSubstituteVariables(substituteVars)
	if err := b.save(ctx, c); err != nil {
		return nil, err
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.SetServicesRendered(len(c.Services()))
	}

	b.logger.Info().
		Str("environment", env).
		Str("compose", paths.RelativeToConfig(outputPath)).
		Int("services", len(c.Services())).
		Bool("substitute_vars", substituteVars).
		Msg("Environment built")

	return c, nil
}

func (b *Builder) loadRecipe(ctx context.Context, recipePath string) (recipe *compose.Recipe, err error) {
	op := telemetry.StartPhase(ctx, "recipe")
	defer func() { op.End(err) }()

	exists, err := afero.Exists(b.fs, recipePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		b.logger.Debug().Str("recipe", recipePath).Msg("No recipe, nothing to build")
		return nil, nil
	}

	return compose.LoadRecipe(b.fs, recipePath)
}

// expand produces the cleaned compose, which is written out, and the uncleaned
// one, which still carries the addon lists hooks are dispatched on.
func (b *Builder) expand(
	ctx context.Context,
	recipe *compose.Recipe,
	recipePath string,
	outputPath string,
	resolver compose.Resolver,
) (c *compose.Compose, uncleaned *compose.Compose, err error) {
	op := telemetry.StartPhase(ctx, "expand")
	defer func() { op.End(err) }()

	expander := compose.NewExpander(b.fs, b.logger)

	c, err = expander.Expand(recipe, recipePath, outputPath, resolver)
	if err != nil {
		return nil, nil, err
	}
	uncleaned, err = expander.Expand(recipe, recipePath, outputPath, resolver, compose.WithUncleaned())
	if err != nil {
		return nil, nil, err
	}
	return c, uncleaned, nil
}

func (b *Builder) applyHooks(
	ctx context.Context,
	c *compose.Compose,
	uncleaned *compose.Compose,
	vars *config.VariableSet,
) (err error) {
	op := telemetry.StartPhase(ctx, "hooks")
	defer func() { op.End(err) }()

	broker := hooks.NewBroker(newInstrumentedLoader(b.loader), b.logger, hooks.WithTimeout(b.timeout))
	return broker.Apply(op.Ctx, c, uncleaned, b.source.Addons(), hooks.NewUtils(vars))
}

func (b *Builder) save(ctx context.Context, c *compose.Compose) (err error) {
	op := telemetry.StartPhase(ctx, "save")
	defer func() { op.End(err) }()

	return c.Save(b.fs)
}
