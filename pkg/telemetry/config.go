package telemetry

import (
	"fmt"
	"time"
)

// Config holds the complete telemetry configuration of a dk invocation.
type Config struct {
	// ServiceName is the name reported by traces and used as the metrics namespace.
	ServiceName string `json:"service_name" yaml:"service_name"`

	// ServiceVersion is the version of the dk binary.
	ServiceVersion string `json:"service_version" yaml:"service_version"`

	// Environment is the active draky environment (dev, test, ...).
	Environment string `json:"environment" yaml:"environment"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Tracing configuration.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Metrics configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `json:"level" yaml:"level"`

	// Format is the output format (console, json).
	Format string `json:"format" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `json:"output" yaml:"output"`

	// EnableCaller adds file:line to every entry.
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// TimeFormat is the timestamp format (rfc3339, unix, unixms, kitchen).
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter is the trace exporter (otlp, stdout, none).
	Exporter string `json:"exporter" yaml:"exporter"`

	// Endpoint is the collector endpoint for the otlp exporter.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// SamplingRate is the fraction of traces kept (0.0 to 1.0).
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`

	// ExportTimeout bounds a single export.
	ExportTimeout time.Duration `json:"export_timeout" yaml:"export_timeout"`

	// Headers are sent with every otlp export.
	Headers map[string]string `json:"headers" yaml:"headers"`

	// Insecure disables TLS for the otlp exporter.
	Insecure bool `json:"insecure" yaml:"insecure"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace" yaml:"namespace"`

	// TextfilePath is where metrics are written when the command exits.
	// Empty means metrics are collected but not written.
	TextfilePath string `json:"textfile_path" yaml:"textfile_path"`

	// DefaultHistogramBuckets for duration histograms.
	DefaultHistogramBuckets []float64 `json:"default_histogram_buckets" yaml:"default_histogram_buckets"`
}

// DefaultConfig returns the configuration used by dk when no flag overrides it.
// Logs go to stderr so command output on stdout stays clean.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "draky",
		ServiceVersion: "dev",
		Environment:    "dev",
		Logging: LoggingConfig{
			Level:        "warn",
			Format:       "console",
			Output:       "stderr",
			EnableCaller: false,
			TimeFormat:   "kitchen",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       make(map[string]string),
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "draky",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
			},
		},
	}
}

// DebugConfig returns a configuration for troubleshooting: debug logs with caller
// information and every trace exported to stdout.
func DebugConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn":  true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{
		"otlp": true, "stdout": true, "none": true,
	}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("trace endpoint is required for the otlp exporter")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics namespace is required when metrics are enabled")
	}

	return nil
}
