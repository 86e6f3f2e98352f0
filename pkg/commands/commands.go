package commands

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
)

const (
	// ScriptPattern matches custom command scripts relative to the config root.
	ScriptPattern = "**/*.dk.sh"

	// CompanionSuffix is appended to a script path to find its metadata file.
	CompanionSuffix = ".yml"

	// PreferredDir holds commands that win over same-named commands elsewhere.
	PreferredDir = "commands"
)

// Command is a user-defined command backed by a script.
type Command struct {
	// Name is what the user types after dk.
	Name string

	// Service is the compose service the script runs in. Empty means the host.
	Service string

	// Path is the script location on the filesystem.
	Path string

	// Help is shown in the command list.
	Help string

	// User runs the script as this user inside the container.
	User string
}

// InContainer reports whether the command runs inside a service container.
func (c Command) InContainer() bool {
	return c.Service != ""
}

// Finder discovers custom commands under a config root.
type Finder struct {
	fs      afero.Fs
	schemas *config.SchemaRegistry
	logger  zerolog.Logger
}

// NewFinder creates a new finder.
func NewFinder(fs afero.Fs, logger zerolog.Logger) *Finder {
	return &Finder{
		fs:      fs,
		schemas: config.NewSchemaRegistry(),
		logger:  logger.With().Str("component", "commands").Logger(),
	}
}

// Discover is a convenience wrapper around Finder.Find.
func Discover(fs afero.Fs, root string) ([]Command, error) {
	return NewFinder(fs, zerolog.Nop()).Find(context.Background(), root)
}

// Find returns the custom commands under root sorted by name. Script names have
// the form <name>.dk.sh or <name>.<service>.dk.sh; other names are skipped. When
// two scripts share a name, the one under root/commands wins, then the one that
// sorts last.
func (f *Finder) Find(ctx context.Context, root string) ([]Command, error) {
	exists, err := afero.DirExists(f.fs, root)
	if err != nil {
		return nil, engine.NewPermanentError("failed to read config root", err).
			WithCode(engine.ErrCodeIO).
			WithFile(root)
	}
	if !exists {
		return nil, nil
	}

	matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(f.fs, root)), ScriptPattern)
	if err != nil {
		return nil, engine.NewPermanentError("failed to scan for commands", err).
			WithCode(engine.ErrCodeIO).
			WithFile(root)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		wi, wj := weight(matches[i]), weight(matches[j])
		if wi != wj {
			return wi < wj
		}
		return matches[i] < matches[j]
	})

	byName := make(map[string]Command)
	for _, rel := range matches {
		name, service, ok := ParseScriptName(path.Base(rel))
		if !ok {
			f.logger.Debug().Str("script", rel).Msg("Skipping script with unexpected name")
			continue
		}

		cmd := Command{
			Name:    name,
			Service: service,
			Path:    path.Join(root, rel),
		}
		f.readCompanion(ctx, &cmd)
		byName[name] = cmd
	}

	commands := make([]Command, 0, len(byName))
	for _, cmd := range byName {
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})

	f.logger.Debug().Int("commands", len(commands)).Str("root", root).Msg("Discovered custom commands")
	return commands, nil
}

// readCompanion fills help and user from the companion file. A missing or
// malformed companion leaves the defaults.
func (f *Finder) readCompanion(ctx context.Context, cmd *Command) {
	companion := cmd.Path + CompanionSuffix
	data, err := afero.ReadFile(f.fs, companion)
	if err != nil {
		return
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		f.logger.Debug().Err(err).Str("file", companion).Msg("Ignoring malformed command companion")
		return
	}
	if doc == nil {
		return
	}
	if err := f.schemas.ValidateAgainstSchema(ctx, config.SchemaCommand, doc); err != nil {
		f.logger.Debug().Err(err).Str("file", companion).Msg("Ignoring invalid command companion")
		return
	}

	if help, ok := doc["help"]; ok {
		cmd.Help = fmt.Sprint(help)
	}
	if user, ok := doc["user"]; ok {
		cmd.User = fmt.Sprint(user)
	}
}

// ParseScriptName splits a script file name into command name and service.
func ParseScriptName(filename string) (name, service string, ok bool) {
	parts := strings.Split(filename, ".")
	switch len(parts) {
	case 3:
		name = parts[0]
	case 4:
		name, service = parts[0], parts[1]
	default:
		return "", "", false
	}
	if name == "" || (len(parts) == 4 && service == "") {
		return "", "", false
	}
	return name, service, true
}

// Lookup returns the command called name.
func Lookup(commands []Command, name string) (Command, bool) {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

func weight(rel string) int {
	if strings.HasPrefix(rel, PreferredDir+"/") {
		return 1
	}
	return 0
}
