package config

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/draky-dev/draky/pkg/engine"
)

var stageProject = map[string]string{
	"/proj/.draky/core.dk.yml": `
id: core
variables:
  DRAKY_PROJECT_ID: shop
  DB_NAME: shop
  DRAKY_ENVIRONMENT: stage
`,
	"/proj/.draky/stage.dk.yml": `
id: stage
dependencies: [core]
environments: [stage]
variables:
  DB_NAME: shop_stage
  DRAKY_ENVIRONMENT: prod
`,
	"/proj/.draky/dev.dk.yml": `
id: dev
environments: [dev]
variables:
  DB_NAME: shop_dev
`,
	"/proj/.draky/addons/php/php.addon.dk.yml": `
id: php
environments: [dev]
`,
	"/proj/sub/dir/file.txt": "",
}

func loadManager(t *testing.T, files map[string]string, env Environment) (*Manager, error) {
	t.Helper()

	m := NewManager(ManagerOptions{
		Fs:          newProjectFs(t, files),
		StartDir:    "/proj/sub/dir",
		Environment: env,
		Logger:      zerolog.Nop(),
	})
	return m, m.Load(context.Background())
}

func get(t *testing.T, vars *VariableSet, name string) string {
	t.Helper()
	v, ok := vars.Get(name)
	if !ok {
		t.Fatalf("variable %s not set", name)
	}
	return v
}

func TestManager_Load_SelectsEnvironmentFromUniversalPass(t *testing.T) {
	m, err := loadManager(t, stageProject, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if m.Environment() != "stage" {
		t.Errorf("expected environment stage, got %s", m.Environment())
	}
	vars := m.Variables()
	if got := get(t, vars, "DB_NAME"); got != "shop_stage" {
		t.Errorf("expected DB_NAME=shop_stage, got %s", got)
	}
	// A scoped fragment cannot rename the environment it was selected for.
	if got := get(t, vars, VarEnvironment); got != "stage" {
		t.Errorf("expected %s=stage, got %s", VarEnvironment, got)
	}
	if got := get(t, vars, VarEnvironmentPath); got != "/proj/.draky/env/stage" {
		t.Errorf("unexpected environment path %s", got)
	}
	if got := get(t, vars, VarProjectRoot); got != "/proj" {
		t.Errorf("unexpected project root %s", got)
	}
	if m.ProjectID() != "shop" {
		t.Errorf("expected project id shop, got %s", m.ProjectID())
	}
	if diff := cmp.Diff([]string{"core", "stage"}, ids(m.ActiveFragments())); diff != "" {
		t.Errorf("active fragments mismatch (-want +got):\n%s", diff)
	}
	if len(m.Addons()) != 0 {
		t.Errorf("expected no addons in stage, got %v", m.Addons())
	}
}

func TestManager_Load_ProcessEnvironmentOverride(t *testing.T) {
	env := NewEnvironment([]string{"DRAKY_ENVIRONMENT=dev", "DRAKY_EXTRA=1", "HOME=/root"})

	m, err := loadManager(t, stageProject, env)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if m.Environment() != "dev" {
		t.Fatalf("expected environment dev, got %s", m.Environment())
	}
	if got := get(t, m.Variables(), "DB_NAME"); got != "shop_dev" {
		t.Errorf("expected DB_NAME=shop_dev, got %s", got)
	}
	if got := get(t, m.Variables(), "DRAKY_EXTRA"); got != "1" {
		t.Errorf("expected DRAKY_EXTRA=1, got %s", got)
	}
	if _, ok := m.Variables().Get("HOME"); ok {
		t.Error("unprefixed process variables must not be merged")
	}

	want := []Addon{{ID: "php", Path: "/proj/.draky/addons/php"}}
	if diff := cmp.Diff(want, m.Addons()); diff != "" {
		t.Errorf("addons mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Load_ScopedFragmentCannotSelectEnvironment(t *testing.T) {
	files := map[string]string{
		"/proj/.draky/dev.dk.yml": `
environments: [dev]
variables:
  DRAKY_ENVIRONMENT: stage
`,
	}

	m, err := loadManager(t, files, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Environment() != DefaultEnvironment {
		t.Errorf("expected default environment, got %s", m.Environment())
	}
	if m.ProjectID() != "proj" {
		t.Errorf("expected project id to fall back to root name, got %s", m.ProjectID())
	}
}

func TestManager_Load_UnmetDependencyInEnvironmentPass(t *testing.T) {
	files := map[string]string{
		"/proj/.draky/dev.dk.yml": `
id: dev
environments: [dev]
dependencies: [stage]
`,
		"/proj/.draky/stage.dk.yml": `
id: stage
environments: [stage]
`,
	}

	_, err := loadManager(t, files, nil)
	if !engine.HasCode(err, engine.ErrCodeUnmetDependency) {
		t.Fatalf("expected unmet dependency error, got: %v", err)
	}
}

func TestFindProjectRoot(t *testing.T) {
	fs := newProjectFs(t, map[string]string{
		"/proj/.draky/core.dk.yml": "",
		"/proj/a/b/c.txt":          "",
		"/other/file.txt":          "",
	})

	root, err := FindProjectRoot(fs, "/proj/a/b")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if root != "/proj" {
		t.Errorf("expected /proj, got %s", root)
	}

	if _, err := FindProjectRoot(fs, "/other"); !engine.HasCode(err, engine.ErrCodeNotFound) {
		t.Errorf("expected not found error, got: %v", err)
	}
}
