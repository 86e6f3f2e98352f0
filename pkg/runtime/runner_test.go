package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/draky-dev/draky/pkg/engine"
)

type recordedCommand struct {
	Name  string
	Args  []string
	Env   []string
	Stdin string
}

// recordingExecutor captures commands instead of running them.
type recordingExecutor struct {
	commands []recordedCommand
	failAt   int
	err      error
}

func (e *recordingExecutor) Run(_ context.Context, cmd Command) error {
	rec := recordedCommand{Name: cmd.Name, Args: cmd.Args, Env: cmd.Env}
	if cmd.Stdin != nil {
		data, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return err
		}
		rec.Stdin = string(data)
	}
	e.commands = append(e.commands, rec)
	if e.err != nil && len(e.commands) == e.failAt {
		return e.err
	}
	return nil
}

func newTestRunner(exec Executor, fs afero.Fs, interactive bool) *Runner {
	return NewRunner(Options{
		ProjectID:   "shop",
		ComposePath: "/p/.draky/env/dev/docker-compose.yml",
		Env:         []string{"DRAKY_PROJECT_ID=shop", "DB_NAME=shop_dev"},
		Fs:          fs,
		Executor:    exec,
		Stdin:       bytes.NewBufferString("input"),
		Stdout:      io.Discard,
		Stderr:      io.Discard,
		Interactive: func() bool { return interactive },
		Logger:      zerolog.Nop(),
	})
}

func TestRunner_Lifecycle(t *testing.T) {
	base := []string{"compose", "-p", "shop", "-f", "/p/.draky/env/dev/docker-compose.yml"}

	tests := []struct {
		name string
		run  func(*Runner) error
		want []string
	}{
		{"up", func(r *Runner) error { return r.Up(context.Background()) }, []string{"up", "-d"}},
		{"stop", func(r *Runner) error { return r.Stop(context.Background()) }, []string{"stop"}},
		{"down", func(r *Runner) error { return r.Down(context.Background()) }, []string{"down", "-v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			if err := tt.run(newTestRunner(exec, nil, true)); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			if len(exec.commands) != 1 {
				t.Fatalf("Expected 1 command, got %d", len(exec.commands))
			}
			got := exec.commands[0]
			if got.Name != "docker" {
				t.Errorf("Expected docker, got %s", got.Name)
			}
			if diff := cmp.Diff(append(append([]string{}, base...), tt.want...), got.Args); diff != "" {
				t.Errorf("Unexpected args (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"DRAKY_PROJECT_ID=shop", "DB_NAME=shop_dev"}, got.Env); diff != "" {
				t.Errorf("Unexpected env (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContainerScriptPath(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"/p/.draky/commands/test.dk.sh", "/tmp/.draky/commands/test.dk.sh"},
		{"/p/.draky/addons/php/commands/composer.php.dk.sh", "/tmp/.draky/addons/php/commands/composer.php.dk.sh"},
		{"/p/.draky/run.dk.sh", "/tmp/.draky/run.dk.sh"},
		{"/elsewhere/run.dk.sh", "/tmp/elsewhere/run.dk.sh"},
	}

	for _, tt := range tests {
		if got := ContainerScriptPath(tt.script); got != tt.want {
			t.Errorf("ContainerScriptPath(%s) = %s, want %s", tt.script, got, tt.want)
		}
	}
}

func TestRunner_Exec(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/p/.draky/commands/test.php.dk.sh", []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	exec := &recordingExecutor{}
	r := newTestRunner(exec, fs, false)

	err := r.Exec(context.Background(), ExecRequest{
		Service:   "php",
		Script:    "/p/.draky/commands/test.php.dk.sh",
		Args:      []string{"--fast", "x"},
		Variables: []string{"DB_NAME"},
		User:      "1000",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(exec.commands) != 3 {
		t.Fatalf("Expected 3 commands, got %d", len(exec.commands))
	}

	dest := "/tmp/.draky/commands/test.php.dk.sh"
	tail := func(c recordedCommand) []string { return c.Args[5:] }

	if diff := cmp.Diff([]string{"exec", "-T", "php", "mkdir", "-p", "/tmp/.draky/commands"}, tail(exec.commands[0])); diff != "" {
		t.Errorf("Unexpected mkdir args (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"exec", "-T", "php", "sh", "-c", "cat > " + dest + "; chmod a+x " + dest}, tail(exec.commands[1])); diff != "" {
		t.Errorf("Unexpected copy args (-want +got):\n%s", diff)
	}
	if exec.commands[1].Stdin != "#!/bin/sh\necho hi\n" {
		t.Errorf("Expected script content on stdin, got %q", exec.commands[1].Stdin)
	}

	want := []string{"exec", "-e", "DB_NAME", "--user", "1000", "-T", "php", dest, "--fast", "x"}
	if diff := cmp.Diff(want, tail(exec.commands[2])); diff != "" {
		t.Errorf("Unexpected exec args (-want +got):\n%s", diff)
	}
	if exec.commands[2].Stdin != "input" {
		t.Errorf("Expected stdin to be forwarded, got %q", exec.commands[2].Stdin)
	}
}

func TestRunner_ExecInteractive(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/p/.draky/commands/sh.php.dk.sh", []byte("sh"), 0o755); err != nil {
		t.Fatal(err)
	}

	exec := &recordingExecutor{}
	err := newTestRunner(exec, fs, true).Exec(context.Background(), ExecRequest{
		Service: "php",
		Script:  "/p/.draky/commands/sh.php.dk.sh",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []string{"exec", "php", "/tmp/.draky/commands/sh.php.dk.sh"}
	if diff := cmp.Diff(want, exec.commands[2].Args[5:]); diff != "" {
		t.Errorf("Unexpected exec args (-want +got):\n%s", diff)
	}
}

func TestRunner_ExecStopsOnFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/p/.draky/commands/t.php.dk.sh", []byte("sh"), 0o755); err != nil {
		t.Fatal(err)
	}

	exec := &recordingExecutor{failAt: 1, err: &ExitError{Command: "docker", ExitCode: 2}}
	err := newTestRunner(exec, fs, true).Exec(context.Background(), ExecRequest{
		Service: "php",
		Script:  "/p/.draky/commands/t.php.dk.sh",
	})
	if ExitCode(err) != 2 {
		t.Fatalf("Expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
	if len(exec.commands) != 1 {
		t.Errorf("Expected to stop after the failed command, ran %d", len(exec.commands))
	}
}

func TestRunner_ExecMissingScript(t *testing.T) {
	exec := &recordingExecutor{}
	err := newTestRunner(exec, afero.NewMemMapFs(), true).Exec(context.Background(), ExecRequest{
		Service: "php",
		Script:  "/p/.draky/commands/missing.php.dk.sh",
	})
	if !engine.HasCode(err, engine.ErrCodeIO) {
		t.Fatalf("Expected IO error, got: %v", err)
	}
}

func TestRunner_RunHost(t *testing.T) {
	exec := &recordingExecutor{}
	err := newTestRunner(exec, nil, true).RunHost(context.Background(), "/p/.draky/commands/hello.dk.sh", []string{"a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := exec.commands[0]
	if got.Name != "/p/.draky/commands/hello.dk.sh" {
		t.Errorf("Expected script as executable, got %s", got.Name)
	}
	if diff := cmp.Diff([]string{"a"}, got.Args); diff != "" {
		t.Errorf("Unexpected args (-want +got):\n%s", diff)
	}
	if got.Stdin != "input" {
		t.Errorf("Expected stdin to be forwarded, got %q", got.Stdin)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("Expected 0 for nil")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Error("Expected 1 for a plain error")
	}
	wrapped := engine.NewTransientError("compose failed", &ExitError{Command: "docker", ExitCode: 130})
	if ExitCode(wrapped) != 130 {
		t.Errorf("Expected 130, got %d", ExitCode(wrapped))
	}
}

func TestProcessExecutor(t *testing.T) {
	var out bytes.Buffer
	err := NewProcessExecutor().Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "echo $GREETING; exit 3"},
		Env:    []string{"GREETING=hello", "PATH=/usr/bin:/bin"},
		Stdout: &out,
	})
	if ExitCode(err) != 3 {
		t.Fatalf("Expected exit code 3, got %d (%v)", ExitCode(err), err)
	}
	if out.String() != "hello\n" {
		t.Errorf("Expected hello, got %q", out.String())
	}

	err = NewProcessExecutor().Run(context.Background(), Command{Name: "/nonexistent/dk-binary"})
	if !engine.IsTransient(err) {
		t.Errorf("Expected transient error for a missing binary, got: %v", err)
	}
}
