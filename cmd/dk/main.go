package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/draky-dev/draky/cmd/dk/commands"
	"github.com/draky-dev/draky/pkg/runtime"
	"github.com/draky-dev/draky/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Cancelled on interrupt so that watch and running containers stop cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, commands.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
	if err != nil {
		code := commands.ExitCode(err)
		// Scripts and docker compose report their own failures.
		var exitErr *runtime.ExitError
		if !errors.As(err, &exitErr) {
			commands.PrintError(os.Stderr, err)
		}
		log.Debug().Err(err).Int("exit_code", code).Msg("Command execution failed")
		os.Exit(code)
	}
}

// setupLogging configures the global zerolog logger used outside of commands.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(telemetry.ParseLevel(os.Getenv("DRAKY_LOG_LEVEL")))
}
