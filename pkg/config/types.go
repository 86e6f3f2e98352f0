package config

import (
	"path/filepath"
	"strings"
)

// Reserved variable names.
const (
	// VariablePrefix is carried by every variable that may be overridden from the process
	// environment.
	VariablePrefix = "DRAKY_"

	VarEnvironment       = "DRAKY_ENVIRONMENT"
	VarEnvironmentPath   = "DRAKY_ENVIRONMENT_PATH"
	VarProjectID         = "DRAKY_PROJECT_ID"
	VarProjectRoot       = "DRAKY_PROJECT_ROOT"
	VarProjectConfigRoot = "DRAKY_PROJECT_CONFIG_ROOT"
	VarGlobalConfigRoot  = "DRAKY_GLOBAL_CONFIG_ROOT"
	VarLogLevel          = "DRAKY_LOG_LEVEL"

	// DefaultEnvironment is selected when no fragment or environment variable names one.
	DefaultEnvironment = "dev"
)

// Filesystem layout.
const (
	// ConfigDirName is the directory that marks a project root.
	ConfigDirName = ".draky"

	// FragmentPattern matches config fragment files relative to the config root.
	FragmentPattern = "**/*.dk.yml"

	addonSuffix    = ".addon.dk.yml"
	templateSuffix = ".template.dk.yml"

	envDirName        = "env"
	RecipeFileName    = "docker-compose.recipe.yml"
	ComposeFileName   = "docker-compose.yml"
	templatesDirName  = "templates"
	defaultConfigHome = ".config"
)

// FragmentKind classifies a fragment by its file name suffix.
type FragmentKind string

const (
	KindBasic    FragmentKind = "basic"
	KindAddon    FragmentKind = "addon"
	KindTemplate FragmentKind = "template"
)

// KindFromPath returns the kind implied by a fragment file name.
func KindFromPath(path string) FragmentKind {
	switch {
	case strings.HasSuffix(path, addonSuffix):
		return KindAddon
	case strings.HasSuffix(path, templateSuffix):
		return KindTemplate
	default:
		return KindBasic
	}
}

// Fragment is a single discovered configuration file.
type Fragment struct {
	// ID identifies the fragment in dependency lists. Basic fragments without an explicit
	// id use their source path.
	ID string `json:"id" validate:"required"`

	// Kind is derived from the file name.
	Kind FragmentKind `json:"kind" validate:"oneof=basic addon template"`

	// Variables declared by the fragment, in declaration order.
	Variables []Variable `json:"variables,omitempty" validate:"dive"`

	// Dependencies are ids of fragments whose variables must be applied first.
	Dependencies []string `json:"dependencies,omitempty" validate:"dive,required"`

	// Environments scope the fragment. Empty means universal.
	Environments []string `json:"environments,omitempty" validate:"dive,required"`

	// SourcePath is the path relative to the config root, with forward slashes.
	SourcePath string `json:"source_path" validate:"required"`

	// Dir is the absolute directory holding the fragment file.
	Dir string `json:"-"`
}

// Variable is a single name/value pair.
type Variable struct {
	Name  string `json:"name" validate:"required,variable_name"`
	Value string `json:"value"`
}

// IsUniversal reports whether the fragment applies to every environment.
func (f *Fragment) IsUniversal() bool {
	return len(f.Environments) == 0
}

// AppliesTo reports whether the fragment is scoped to the given environment.
func (f *Fragment) AppliesTo(env string) bool {
	for _, e := range f.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// Addon describes an active addon.
type Addon struct {
	// ID is the addon fragment id, referenced from recipe service metadata.
	ID string `json:"id"`

	// Path is the absolute directory of the addon fragment. Hooks live next to it.
	Path string `json:"path"`
}

// Addon returns the addon descriptor of an addon fragment.
func (f *Fragment) Addon() Addon {
	return Addon{ID: f.ID, Path: f.Dir}
}

// Paths locates the well-known directories and files of a project.
type Paths struct {
	// ProjectRoot is the directory containing .draky.
	ProjectRoot string

	// ConfigRoot is the .draky directory.
	ConfigRoot string
}

// NewPaths returns the paths for a project root.
func NewPaths(projectRoot string) Paths {
	return Paths{
		ProjectRoot: projectRoot,
		ConfigRoot:  filepath.Join(projectRoot, ConfigDirName),
	}
}

// EnvironmentsRoot is the directory holding one directory per environment.
func (p Paths) EnvironmentsRoot() string {
	return filepath.Join(p.ConfigRoot, envDirName)
}

// EnvironmentPath is the directory of the named environment.
func (p Paths) EnvironmentPath(env string) string {
	return filepath.Join(p.EnvironmentsRoot(), env)
}

// RecipePath is the recipe file of the named environment.
func (p Paths) RecipePath(env string) string {
	return filepath.Join(p.EnvironmentPath(env), RecipeFileName)
}

// ComposePath is the generated compose file of the named environment.
func (p Paths) ComposePath(env string) string {
	return filepath.Join(p.EnvironmentPath(env), ComposeFileName)
}

// RelativeToConfig returns path relative to the config root, with forward slashes.
// Paths outside the config root are returned unchanged.
func (p Paths) RelativeToConfig(path string) string {
	rel, err := filepath.Rel(p.ConfigRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// GlobalConfigRoot returns the directory holding user-wide configuration such as project
// templates.
func GlobalConfigRoot(env Environment, home string) string {
	if root, ok := env.Lookup(VarGlobalConfigRoot); ok && root != "" {
		return root
	}
	if xdg, ok := env.Lookup("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, "draky")
	}
	return filepath.Join(home, defaultConfigHome, "draky")
}

// TemplatesRoot is the directory holding project templates under a global config root.
func TemplatesRoot(globalRoot string) string {
	return filepath.Join(globalRoot, templatesDirName)
}
