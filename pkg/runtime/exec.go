package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/draky-dev/draky/pkg/engine"
)

// Command is a single process invocation.
type Command struct {
	// Name is the executable.
	Name string

	// Args are the arguments passed to the executable.
	Args []string

	// Env is the complete environment of the process as KEY=VALUE entries.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Executor runs commands.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a process that ran and exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

// ExitCode returns the exit status carried by err, or 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return 1
}

// processExecutor runs commands as child processes.
type processExecutor struct{}

// NewProcessExecutor returns an Executor backed by os/exec.
func NewProcessExecutor() Executor {
	return processExecutor{}
}

func (processExecutor) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c.String(), ExitCode: exitErr.ExitCode()}
	}
	return engine.NewTransientError(fmt.Sprintf("failed to execute %s", c.Name), err).
		WithCode(engine.ErrCodeRuntime)
}
