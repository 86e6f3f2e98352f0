// Package telemetry provides the observability plumbing of dk.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and metrics
// (Prometheus) behind one Telemetry value created once per invocation.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Logs go to stderr by default so they never interleave with generated output
// such as `dk config vars`. The level is taken from DRAKY_LOG_LEVEL or raised by
// --verbose. Every entry carries the run_id of the invocation.
//
//	logger := tel.Logger.NewComponentLogger("envbuild")
//	logger.WithProject("shop", "dev").Info("compose file written")
//
// # Tracing
//
// Tracing is off unless --trace is given. The build pipeline opens one span per
// phase:
//
//	op := telemetry.StartPhase(ctx, "expand")
//	defer func() { op.End(err) }()
//
// # Metrics
//
// dk is a short-lived process, so metrics are not served over HTTP. When
// --metrics-file is set the registry is written in the Prometheus text format on
// exit, ready for the node exporter textfile collector.
package telemetry
