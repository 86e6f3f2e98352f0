package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
)

// DefaultTemplate is used when no template is named.
const DefaultTemplate = "default"

// projectFragmentFile is written by init to hold the project identity.
const projectFragmentFile = "project.dk.yml"

//go:embed all:templates/default
var defaultTemplate embed.FS

var composeProjectName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// initOptions are the inputs of dk env init.
type initOptions struct {
	ID       string `validate:"required,compose_project"`
	Template string `validate:"required"`
}

func newInitValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("compose_project", func(fl validator.FieldLevel) bool {
		return composeProjectName.MatchString(fl.Field().String())
	})
	return v
}

// projectFragment is the document written to .draky/project.dk.yml.
type projectFragment struct {
	ID        string `yaml:"id"`
	Variables struct {
		ProjectID   string `yaml:"DRAKY_PROJECT_ID"`
		Environment string `yaml:"DRAKY_ENVIRONMENT"`
	} `yaml:"variables"`
}

func newEnvInitCommand(a *app) *cobra.Command {
	opts := initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the environment configuration for the project",
		Long: `Create the .draky directory of a project from a template.

Templates are read from <global config>/templates/<name>/.draky, where the global
config root is DRAKY_GLOBAL_CONFIG_ROOT, $XDG_CONFIG_HOME/draky or ~/.config/draky.
The built-in "default" template holds an empty dev environment.`,
		Example: `  # Initialize with the built-in template
  dk env init --id shop

  # Initialize from ~/.config/draky/templates/php/.draky
  dk env init --id shop --template php`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newInitValidator().Struct(opts); err != nil {
				return engine.Validation("invalid init options: project id must be lowercase letters, digits, '-' or '_'").
					WithVariable(config.VarProjectID)
			}

			configRoot := filepath.Join(a.startDir(), config.ConfigDirName)
			if err := a.ensureEmptyConfigRoot(configRoot); err != nil {
				return err
			}

			if err := a.copyTemplate(opts.Template, configRoot); err != nil {
				return err
			}
			if err := a.writeProjectFragment(configRoot, opts.ID); err != nil {
				return err
			}

			a.logger().Info().Str("project", opts.ID).Str("template", opts.Template).Msg("Project initialized")
			a.printSuccess("Project has been initialized.")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "project id, used as the docker compose project name")
	cmd.Flags().StringVarP(&opts.Template, "template", "t", DefaultTemplate, "template to initialize the project from")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func (a *app) ensureEmptyConfigRoot(configRoot string) error {
	exists, err := afero.DirExists(a.fs, configRoot)
	if err != nil || !exists {
		return err
	}
	empty, err := afero.IsEmpty(a.fs, configRoot)
	if err != nil {
		return err
	}
	if !empty {
		return engine.Validation(
			"'%s' directory already exists in the project and is not empty. If you want to initialize the project again, delete it",
			config.ConfigDirName,
		).WithFile(configRoot)
	}
	return nil
}

// templateRoot returns the .draky directory of a user template, or "" when no
// user template has that name.
func (a *app) templateRoot(name string) (string, error) {
	env := a.environment()
	home, _ := env.Lookup("HOME")
	root := filepath.Join(config.TemplatesRoot(config.GlobalConfigRoot(env, home)), name, config.ConfigDirName)

	exists, err := afero.DirExists(a.fs, root)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}
	return root, nil
}

// availableTemplates lists the user templates plus the built-in one.
func (a *app) availableTemplates() []string {
	env := a.environment()
	home, _ := env.Lookup("HOME")
	root := config.TemplatesRoot(config.GlobalConfigRoot(env, home))

	names := map[string]bool{DefaultTemplate: true}
	entries, _ := afero.ReadDir(a.fs, root)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if ok, _ := afero.DirExists(a.fs, filepath.Join(root, entry.Name(), config.ConfigDirName)); ok {
			names[entry.Name()] = true
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// copyTemplate copies a template's .draky directory to dest. A user template
// named "default" replaces the built-in one.
func (a *app) copyTemplate(name, dest string) error {
	src, err := a.templateRoot(name)
	if err != nil {
		return err
	}

	if src != "" {
		return copyTree(afero.NewIOFS(afero.NewBasePathFs(a.fs, src)), a.fs, dest)
	}
	if name != DefaultTemplate {
		return engine.NewPermanentError(
			fmt.Sprintf("template %q not found, available templates: %v", name, a.availableTemplates()),
			nil,
		).WithCode(engine.ErrCodeNotFound)
	}

	builtin, err := fs.Sub(defaultTemplate, path.Join("templates", DefaultTemplate, config.ConfigDirName))
	if err != nil {
		return err
	}
	return copyTree(builtin, a.fs, dest)
}

// copyTree copies every file of src below dest.
func copyTree(src fs.FS, dst afero.Fs, dest string) error {
	return fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(p))
		if d.IsDir() {
			return dst.MkdirAll(target, 0o755)
		}

		data, err := fs.ReadFile(src, p)
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if info, err := d.Info(); err == nil && info.Mode()&0o111 != 0 {
			mode = 0o755
		}
		if err := afero.WriteFile(dst, target, data, mode); err != nil {
			return engine.NewPermanentError("failed to copy template file", err).
				WithCode(engine.ErrCodeIO).
				WithFile(target)
		}
		return nil
	})
}

func (a *app) writeProjectFragment(configRoot, projectID string) error {
	doc := projectFragment{ID: "project"}
	doc.Variables.ProjectID = projectID
	doc.Variables.Environment = config.DefaultEnvironment

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	content := append([]byte("# Managed by dk env init.\n"), data...)

	path := filepath.Join(configRoot, projectFragmentFile)
	if err := afero.WriteFile(a.fs, path, content, 0o644); err != nil {
		return engine.NewPermanentError("failed to write project configuration", err).
			WithCode(engine.ErrCodeIO).
			WithFile(path)
	}
	return nil
}
