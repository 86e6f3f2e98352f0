package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/draky-dev/draky/pkg/compose"
	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 30 * time.Second

// Utils are the helpers handed to hooks.
type Utils interface {
	// SubstituteVariables replaces ${NAME} references with variable values.
	SubstituteVariables(text string) (string, error)
}

// ServiceMutator alters the definition of a service an addon is associated with.
type ServiceMutator interface {
	// AlterService may change service in place.
	AlterService(ctx context.Context, name string, service map[string]any, utils Utils, addon config.Addon) error
}

// Loader locates the hook of an addon. It returns a nil mutator, and no error, when the
// addon has no hook or the hook has no service entry point.
type Loader interface {
	Load(ctx context.Context, addon config.Addon) (ServiceMutator, error)
}

// closer is implemented by mutators holding resources.
type closer interface {
	Close(ctx context.Context) error
}

// resolverUtils adapts a variable resolver to Utils.
type resolverUtils struct {
	resolver compose.Resolver
}

// NewUtils returns Utils backed by resolver.
func NewUtils(resolver compose.Resolver) Utils {
	return resolverUtils{resolver: resolver}
}

func (u resolverUtils) SubstituteVariables(text string) (string, error) {
	return u.resolver.Resolve(text)
}

// Broker invokes addon hooks on the services associated with each addon.
type Broker struct {
	loader  Loader
	timeout time.Duration
	logger  zerolog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = timeout
	}
}

// NewBroker creates a broker using loader to find hooks.
func NewBroker(loader Loader, logger zerolog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		loader:  loader,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "hooks").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Apply runs the hook of every addon on the services of c that list the addon in the
// uncleaned view. Addons without a hook are skipped.
func (b *Broker) Apply(
	ctx context.Context,
	c *compose.Compose,
	uncleaned *compose.Compose,
	addons []config.Addon,
	utils Utils,
) error {
	for _, addon := range addons {
		if err := b.applyAddon(ctx, c, uncleaned, addon, utils); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) applyAddon(
	ctx context.Context,
	c *compose.Compose,
	uncleaned *compose.Compose,
	addon config.Addon,
	utils Utils,
) error {
	var mutator ServiceMutator
	loaded := false

	for _, name := range c.Services() {
		associated, err := uncleaned.Addons(name)
		if err != nil {
			return err
		}
		if !contains(associated, addon.ID) {
			continue
		}

		if !loaded {
			loaded = true
			mutator, err = b.loader.Load(ctx, addon)
			if err != nil {
				return engine.NewPermanentError("failed to load addon hook", err).
					WithCode(engine.ErrCodeHookFailed).
					WithDependency(addon.ID).
					WithFile(addon.Path)
			}
			if mutator == nil {
				b.logger.Debug().Str("addon", addon.ID).Msg("Addon has no hook")
				return nil
			}
			if cl, ok := mutator.(closer); ok {
				defer cl.Close(ctx)
			}
		}

		service, err := c.Service(name)
		if err != nil {
			return err
		}

		b.logger.Debug().Str("addon", addon.ID).Str("service", name).Msg("Running addon hook")

		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err = mutator.AlterService(callCtx, name, service, utils, addon)
		cancel()
		if err != nil {
			return engine.NewPermanentError("addon hook failed", err).
				WithCode(engine.ErrCodeHookFailed).
				WithService(name).
				WithDependency(addon.ID)
		}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// chainLoader returns the first hook found by its loaders.
type chainLoader []Loader

// NewChainLoader combines loaders. The first one returning a mutator wins.
func NewChainLoader(loaders ...Loader) Loader {
	return chainLoader(loaders)
}

func (c chainLoader) Load(ctx context.Context, addon config.Addon) (ServiceMutator, error) {
	for _, loader := range c {
		mutator, err := loader.Load(ctx, addon)
		if err != nil {
			return nil, err
		}
		if mutator != nil {
			return mutator, nil
		}
	}
	return nil, nil
}
