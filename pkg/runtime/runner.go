package runtime

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
)

// ContainerScriptRoot is where scripts are copied inside service containers.
const ContainerScriptRoot = "/tmp"

// Options configures a Runner.
type Options struct {
	// ProjectID is the compose project name.
	ProjectID string

	// ComposePath is the generated compose file of the active environment.
	ComposePath string

	// Env is the environment of every child process, usually Environment.Environ(vars).
	Env []string

	// Fs is used to read scripts copied into containers. Defaults to the OS filesystem.
	Fs afero.Fs

	// Executor runs the processes. Defaults to NewProcessExecutor().
	Executor Executor

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive reports whether stdin is a terminal. Defaults to checking Stdin.
	Interactive func() bool

	Logger zerolog.Logger
}

// Runner drives the container runtime for one project environment.
type Runner struct {
	project     string
	composePath string
	env         []string
	fs          afero.Fs
	executor    Executor
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive func() bool
	logger      zerolog.Logger
}

// NewRunner creates a new runner.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		project:     opts.ProjectID,
		composePath: opts.ComposePath,
		env:         opts.Env,
		fs:          opts.Fs,
		executor:    opts.Executor,
		stdin:       opts.Stdin,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		interactive: opts.Interactive,
		logger:      opts.Logger.With().Str("component", "runtime").Logger(),
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.executor == nil {
		r.executor = NewProcessExecutor()
	}
	if r.stdin == nil {
		r.stdin = os.Stdin
	}
	if r.stdout == nil {
		r.stdout = os.Stdout
	}
	if r.stderr == nil {
		r.stderr = os.Stderr
	}
	if r.interactive == nil {
		r.interactive = func() bool {
			f, ok := r.stdin.(*os.File)
			return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
		}
	}
	return r
}

// composeArgs returns the arguments shared by every compose invocation.
func (r *Runner) composeArgs(args ...string) []string {
	base := []string{"compose", "-p", r.project, "-f", r.composePath}
	return append(base, args...)
}

func (r *Runner) compose(ctx context.Context, stdin io.Reader, args ...string) error {
	cmd := Command{
		Name:   "docker",
		Args:   r.composeArgs(args...),
		Env:    r.env,
		Stdin:  stdin,
		Stdout: r.stdout,
		Stderr: r.stderr,
	}
	r.logger.Debug().Str("command", cmd.String()).Msg("Running container runtime")
	return r.executor.Run(ctx, cmd)
}

// Up starts the environment in the background.
func (r *Runner) Up(ctx context.Context) error {
	return r.compose(ctx, nil, "up", "-d")
}

// Stop stops the containers of the environment without removing them.
func (r *Runner) Stop(ctx context.Context) error {
	return r.compose(ctx, nil, "stop")
}

// Down removes the containers and volumes of the environment.
func (r *Runner) Down(ctx context.Context) error {
	return r.compose(ctx, nil, "down", "-v")
}

// ExecRequest describes a script run inside a service container.
type ExecRequest struct {
	// Service is the compose service to run in.
	Service string

	// Script is the host path of the script.
	Script string

	// Args are passed to the script.
	Args []string

	// Variables are names of variables forwarded to the container. Their values
	// come from the runner's environment.
	Variables []string

	// User runs the script as this user when set.
	User string
}

// ContainerScriptPath returns where script is placed inside a container: its path
// from the .draky directory down, under ContainerScriptRoot.
func ContainerScriptPath(script string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(script)), "/")
	start := len(parts) - 1
	for i := len(parts) - 2; i >= 0; i-- {
		start = i
		if parts[i] == config.ConfigDirName {
			break
		}
	}
	return path.Join(append([]string{ContainerScriptRoot}, parts[start:]...)...)
}

// Exec copies a script into a service container and runs it there. Stdin is
// forwarded to the script and a TTY is allocated only when stdin is a terminal.
func (r *Runner) Exec(ctx context.Context, req ExecRequest) error {
	dest := ContainerScriptPath(req.Script)

	if err := r.compose(ctx, nil, "exec", "-T", req.Service, "mkdir", "-p", path.Dir(dest)); err != nil {
		return err
	}

	script, err := r.fs.Open(req.Script)
	if err != nil {
		return engine.NewPermanentError("failed to open command script", err).
			WithCode(engine.ErrCodeIO).
			WithFile(req.Script)
	}
	defer script.Close()

	copyCmd := "cat > " + dest + "; chmod a+x " + dest
	if err := r.compose(ctx, script, "exec", "-T", req.Service, "sh", "-c", copyCmd); err != nil {
		return err
	}

	args := []string{"exec"}
	for _, name := range req.Variables {
		args = append(args, "-e", name)
	}
	if req.User != "" {
		args = append(args, "--user", req.User)
	}
	if !r.interactive() {
		args = append(args, "-T")
	}
	args = append(args, req.Service, dest)
	args = append(args, req.Args...)

	return r.compose(ctx, r.stdin, args...)
}

// RunHost runs a script on the host with the project variables in its environment.
func (r *Runner) RunHost(ctx context.Context, script string, args []string) error {
	cmd := Command{
		Name:   script,
		Args:   args,
		Env:    r.env,
		Stdin:  r.stdin,
		Stdout: r.stdout,
		Stderr: r.stderr,
	}
	r.logger.Debug().Str("command", cmd.String()).Msg("Running host command")
	return r.executor.Run(ctx, cmd)
}
