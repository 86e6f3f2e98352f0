package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for dk invocations.
// A disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Command metrics
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Build pipeline metrics
	phaseDuration       *prometheus.HistogramVec
	fragmentsDiscovered prometheus.Gauge
	servicesRendered    prometheus.Gauge

	// Hook metrics
	hookInvocations *prometheus.CounterVec
	hookDuration    *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of dk commands run",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of dk commands in seconds",
				Buckets:   buckets,
			},
			[]string{"command"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_phase_duration_seconds",
				Help:      "Duration of each environment build phase in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		fragmentsDiscovered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fragments_discovered",
				Help:      "Number of configuration fragments found in the project",
			},
		),
		servicesRendered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_rendered",
				Help:      "Number of services written to the last generated compose file",
			},
		),

		hookInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_invocations_total",
				Help:      "Total number of addon hook invocations",
			},
			[]string{"addon", "status"},
		),
		hookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "hook_duration_seconds",
				Help:      "Duration of addon hook invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"addon"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.phaseDuration,
		m.fragmentsDiscovered,
		m.servicesRendered,
		m.hookInvocations,
		m.hookDuration,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordCommand records a finished dk command.
func (m *Metrics) RecordCommand(command, status string, duration time.Duration) {
	if m == nil || m.commandsTotal == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordPhase records the duration of one build phase.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetFragmentsDiscovered sets the number of fragments found by discovery.
func (m *Metrics) SetFragmentsDiscovered(count int) {
	if m == nil || m.fragmentsDiscovered == nil {
		return
	}
	m.fragmentsDiscovered.Set(float64(count))
}

// SetServicesRendered sets the number of services in the generated compose file.
func (m *Metrics) SetServicesRendered(count int) {
	if m == nil || m.servicesRendered == nil {
		return
	}
	m.servicesRendered.Set(float64(count))
}

// RecordHook records a single addon hook invocation.
func (m *Metrics) RecordHook(addon, status string, duration time.Duration) {
	if m == nil || m.hookInvocations == nil {
		return
	}
	m.hookInvocations.WithLabelValues(addon, status).Inc()
	m.hookDuration.WithLabelValues(addon).Observe(duration.Seconds())
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes every collected metric to path in the Prometheus text
// format, for pickup by the node exporter textfile collector. An empty path uses
// the configured TextfilePath; if both are empty nothing is written.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || m.registry == nil {
		return nil
	}
	if path == "" {
		path = m.config.TextfilePath
	}
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
