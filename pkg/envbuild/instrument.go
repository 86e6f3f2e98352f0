package envbuild

import (
	"context"

	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/hooks"
	"github.com/draky-dev/draky/pkg/telemetry"
)

// instrumentedLoader wraps the mutators of a loader so every hook invocation gets
// a span and is counted.
type instrumentedLoader struct {
	next hooks.Loader
}

func newInstrumentedLoader(next hooks.Loader) hooks.Loader {
	return instrumentedLoader{next: next}
}

func (l instrumentedLoader) Load(ctx context.Context, addon config.Addon) (hooks.ServiceMutator, error) {
	mutator, err := l.next.Load(ctx, addon)
	if err != nil || mutator == nil {
		return nil, err
	}
	return &instrumentedMutator{next: mutator}, nil
}

type instrumentedMutator struct {
	next hooks.ServiceMutator
}

func (m *instrumentedMutator) AlterService(
	ctx context.Context,
	name string,
	service map[string]any,
	utils hooks.Utils,
	addon config.Addon,
) error {
	tel := telemetry.FromTelemetryContext(ctx)
	if tel == nil {
		return m.next.AlterService(ctx, name, service, utils, addon)
	}

	timer := telemetry.NewTimer()
	spanCtx, span := tel.Tracer.StartHookSpan(ctx, addon.ID, name)
	err := m.next.AlterService(spanCtx, name, service, utils, addon)

	status := "success"
	if err != nil {
		status = "error"
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
	tel.Metrics.RecordHook(addon.ID, status, timer.Duration())

	return err
}

// Close releases the wrapped mutator when it holds resources.
func (m *instrumentedMutator) Close(ctx context.Context) error {
	if c, ok := m.next.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}
