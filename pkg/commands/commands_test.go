package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o755); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return fs
}

func TestParseScriptName(t *testing.T) {
	tests := []struct {
		filename string
		name     string
		service  string
		ok       bool
	}{
		{"test.dk.sh", "test", "", true},
		{"composer.php.dk.sh", "composer", "php", true},
		{"dk.sh", "", "", false},
		{"a.b.c.dk.sh", "", "", false},
		{".php.dk.sh", "", "", false},
		{"run..dk.sh", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			name, service, ok := ParseScriptName(tt.filename)
			if ok != tt.ok || name != tt.name || service != tt.service {
				t.Errorf("ParseScriptName(%s) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, name, service, ok, tt.name, tt.service, tt.ok)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/p/.draky/commands/test.php.dk.sh":              "#!/bin/sh",
		"/p/.draky/commands/test.php.dk.sh.yml":          "help: Run tests\nuser: 1000\n",
		"/p/.draky/commands/hello.dk.sh":                 "#!/bin/sh",
		"/p/.draky/addons/php/composer.php.dk.sh":        "#!/bin/sh",
		"/p/.draky/addons/php/composer.php.dk.sh.yml":    "help: Run composer\n",
		"/p/.draky/addons/php/too.many.parts.here.dk.sh": "#!/bin/sh",
		"/p/.draky/addons/php/readme.md":                 "",
		"/p/.draky/env/dev/docker-compose.recipe.yml":    "services: {}\n",
	})

	got, err := NewFinder(fs, zerolog.Nop()).Find(context.Background(), "/p/.draky")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []Command{
		{Name: "composer", Service: "php", Path: "/p/.draky/addons/php/composer.php.dk.sh", Help: "Run composer"},
		{Name: "hello", Path: "/p/.draky/commands/hello.dk.sh"},
		{Name: "test", Service: "php", Path: "/p/.draky/commands/test.php.dk.sh", Help: "Run tests", User: "1000"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected commands (-want +got):\n%s", diff)
	}

	if !got[2].InContainer() || got[1].InContainer() {
		t.Error("Expected only service commands to run in a container")
	}
}

func TestDiscover_CommandsDirWins(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/p/.draky/commands/lint.dk.sh":       "",
		"/p/.draky/addons/php/lint.php.dk.sh": "",
		"/p/.draky/zzz/lint.node.dk.sh":       "",
	})

	got, err := Discover(fs, "/p/.draky")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(got))
	}
	if got[0].Path != "/p/.draky/commands/lint.dk.sh" {
		t.Errorf("Expected the commands directory to win, got %s", got[0].Path)
	}
}

func TestDiscover_MalformedCompanionIgnored(t *testing.T) {
	tests := map[string]string{
		"invalid yaml": "help: [unclosed\n",
		"wrong type":   "help:\n  - a\n  - b\n",
		"not a map":    "- just a list\n",
		"empty":        "",
	}

	for name, companion := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFs(t, map[string]string{
				"/p/.draky/commands/run.dk.sh":     "",
				"/p/.draky/commands/run.dk.sh.yml": companion,
			})

			got, err := Discover(fs, "/p/.draky")
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			want := []Command{{Name: "run", Path: "/p/.draky/commands/run.dk.sh"}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Unexpected commands (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	got, err := Discover(afero.NewMemMapFs(), "/nowhere/.draky")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no commands, got %v", got)
	}
}

func TestLookup(t *testing.T) {
	cmds := []Command{{Name: "a"}, {Name: "b", Service: "php"}}

	if cmd, ok := Lookup(cmds, "b"); !ok || cmd.Service != "php" {
		t.Errorf("Expected to find b, got %v %v", cmd, ok)
	}
	if _, ok := Lookup(cmds, "c"); ok {
		t.Error("Expected c to be missing")
	}
}
