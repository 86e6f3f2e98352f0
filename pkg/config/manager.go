package config

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/draky-dev/draky/pkg/engine"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Fs is the filesystem to read from. Defaults to the OS filesystem.
	Fs afero.Fs

	// StartDir is where the project root search begins.
	StartDir string

	// Environment is the captured process environment.
	Environment Environment

	// Logger receives debug output about the resolution.
	Logger zerolog.Logger
}

// Manager runs the two-pass resolution of a project's configuration: a universal pass
// that selects the environment, then a pass scoped to that environment.
type Manager struct {
	fs         afero.Fs
	startDir   string
	env        Environment
	logger     zerolog.Logger
	discoverer *Discoverer

	paths       Paths
	fragments   []*Fragment
	active      []*Fragment
	universal   *VariableSet
	variables   *VariableSet
	environment string
	projectID   string
}

// NewManager creates a configuration manager.
func NewManager(opts ManagerOptions) *Manager {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	env := opts.Environment
	if env == nil {
		env = Environment{}
	}
	return &Manager{
		fs:         fs,
		startDir:   opts.StartDir,
		env:        env,
		logger:     opts.Logger.With().Str("component", "config").Logger(),
		discoverer: NewDiscoverer(fs),
	}
}

// FindProjectRoot returns the nearest directory, starting at start and walking up, that
// contains a .draky directory.
func FindProjectRoot(fs afero.Fs, start string) (string, error) {
	dir := filepath.Clean(start)
	for {
		ok, err := afero.DirExists(fs, filepath.Join(dir, ConfigDirName))
		if err != nil {
			return "", engine.NewPermanentError("failed to look for project root", err).
				WithCode(engine.ErrCodeIO).
				WithFile(dir)
		}
		if ok {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", engine.NewPermanentError(
				"not inside a project: no "+ConfigDirName+" directory found", nil,
			).WithCode(engine.ErrCodeNotFound).WithFile(start)
		}
		dir = parent
	}
}

// Load discovers fragments and resolves the variables of the active environment.
func (m *Manager) Load(ctx context.Context) error {
	root, err := FindProjectRoot(m.fs, m.startDir)
	if err != nil {
		return err
	}
	m.paths = NewPaths(root)

	fragments, err := m.discoverer.Discover(ctx, m.paths.ConfigRoot)
	if err != nil {
		return err
	}
	m.fragments = fragments
	m.logger.Debug().
		Int("fragments", len(fragments)).
		Str("config_root", m.paths.ConfigRoot).
		Msg("Discovered config fragments")

	builtins := NewVariableSet()
	builtins.Set(VarProjectRoot, m.paths.ProjectRoot)
	builtins.Set(VarProjectConfigRoot, m.paths.ConfigRoot)

	universalFragments, err := SortByDependency(SelectUniversal(fragments))
	if err != nil {
		return err
	}
	m.universal = builtins.Clone()
	m.universal.Update(Merge(universalFragments, m.env))

	m.environment = SelectEnvironment(m.universal)
	m.logger.Debug().Str("environment", m.environment).Msg("Selected environment")

	active, err := SortByDependency(SelectForEnvironment(fragments, m.environment))
	if err != nil {
		return err
	}
	m.active = active

	m.variables = builtins.Clone()
	m.variables.Update(Merge(active, m.env))
	m.variables.Set(VarEnvironment, m.environment)
	m.variables.Set(VarEnvironmentPath, m.paths.EnvironmentPath(m.environment))

	m.projectID = filepath.Base(m.paths.ProjectRoot)
	if id, ok := m.variables.Get(VarProjectID); ok && id != "" {
		m.projectID = id
	}

	m.logger.Debug().
		Int("active_fragments", len(active)).
		Int("variables", m.variables.Len()).
		Str("project", m.projectID).
		Msg("Resolved configuration")

	return nil
}

// Paths returns the project paths.
func (m *Manager) Paths() Paths {
	return m.paths
}

// Fragments returns every discovered fragment in discovery order.
func (m *Manager) Fragments() []*Fragment {
	return m.fragments
}

// ActiveFragments returns the fragments of the environment pass in dependency order.
func (m *Manager) ActiveFragments() []*Fragment {
	return m.active
}

// UniversalVariables returns the variables of the universal pass.
func (m *Manager) UniversalVariables() *VariableSet {
	return m.universal
}

// Variables returns the variables of the active environment.
func (m *Manager) Variables() *VariableSet {
	return m.variables
}

// Environment returns the active environment name.
func (m *Manager) Environment() string {
	return m.environment
}

// ProjectID returns the compose project name.
func (m *Manager) ProjectID() string {
	return m.projectID
}

// Addons returns the addons active in the selected environment.
func (m *Manager) Addons() []Addon {
	return Addons(m.active)
}

// EnvironmentExists reports whether the active environment has a directory.
func (m *Manager) EnvironmentExists() (bool, error) {
	return afero.DirExists(m.fs, m.paths.EnvironmentPath(m.environment))
}
