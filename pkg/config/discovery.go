package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/draky-dev/draky/pkg/engine"
)

// Discoverer finds and parses config fragments.
type Discoverer struct {
	fs        afero.Fs
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// variableNamePattern is the shape of a variable name usable in a process environment.
var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewDiscoverer creates a discoverer reading from fs.
func NewDiscoverer(fs afero.Fs) *Discoverer {
	v := validator.New()
	_ = v.RegisterValidation("variable_name", func(fl validator.FieldLevel) bool {
		return variableNamePattern.MatchString(fl.Field().String())
	})

	return &Discoverer{
		fs:        fs,
		schemas:   NewSchemaRegistry(),
		validator: v,
	}
}

// Discover is a convenience wrapper around NewDiscoverer(fs).Discover.
func Discover(fs afero.Fs, root string) ([]*Fragment, error) {
	return NewDiscoverer(fs).Discover(context.Background(), root)
}

// Discover walks root recursively and parses every fragment file, in lexical order of
// their slash-separated paths.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]*Fragment, error) {
	var paths []string
	err := afero.Walk(d.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		matched, err := doublestar.Match(FragmentPattern, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if matched {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewPermanentError("config root does not exist", err).
				WithCode(engine.ErrCodeNotFound).
				WithFile(root)
		}
		return nil, engine.NewPermanentError("failed to scan config root", err).
			WithCode(engine.ErrCodeIO).
			WithFile(root)
	}

	// Walk order visits a directory before a sibling file sharing its prefix.
	sort.Slice(paths, func(i, j int) bool {
		return filepath.ToSlash(paths[i]) < filepath.ToSlash(paths[j])
	})

	fragments := make([]*Fragment, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, path)
		fragment, err := d.Load(ctx, path, filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment)
	}

	return fragments, nil
}

// Load parses a single fragment file. sourcePath is the path reported in errors and used
// as the default id.
func (d *Discoverer) Load(ctx context.Context, path, sourcePath string) (*Fragment, error) {
	data, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, engine.NewPermanentError("failed to read fragment", err).
			WithCode(engine.ErrCodeIO).
			WithFragment(sourcePath)
	}

	fragment, err := d.Parse(ctx, data, sourcePath)
	if err != nil {
		return nil, err
	}
	fragment.Dir = filepath.Dir(path)
	return fragment, nil
}

// Parse decodes and validates fragment content.
func (d *Discoverer) Parse(ctx context.Context, data []byte, sourcePath string) (*Fragment, error) {
	var document map[string]any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, engine.NewPermanentError("failed to parse fragment", err).
			WithCode(engine.ErrCodeParse).
			WithFragment(sourcePath)
	}
	for key, value := range document {
		// "variables:" with nothing after it is an empty section.
		if value == nil {
			delete(document, key)
		}
	}
	if document == nil {
		document = map[string]any{}
	}

	if err := d.schemas.ValidateFragment(ctx, document); err != nil {
		return nil, engine.NewPermanentError("invalid fragment", err).
			WithCode(engine.ErrCodeValidation).
			WithFragment(sourcePath)
	}

	var raw fragmentDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, engine.NewPermanentError("failed to parse fragment", err).
			WithCode(engine.ErrCodeParse).
			WithFragment(sourcePath)
	}

	kind := KindFromPath(sourcePath)
	if raw.ID == "" && kind != KindBasic {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("%s fragments must declare an id", kind), nil,
		).WithCode(engine.ErrCodeValidation).WithFragment(sourcePath)
	}

	variables, err := decodeVariables(&raw.Variables)
	if err != nil {
		var engineErr *engine.Error
		if errors.As(err, &engineErr) {
			return nil, engineErr.WithFragment(sourcePath)
		}
		return nil, err
	}

	fragment := &Fragment{
		ID:           raw.ID,
		Kind:         kind,
		Variables:    variables,
		Dependencies: raw.Dependencies,
		Environments: raw.Environments,
		SourcePath:   sourcePath,
	}
	if fragment.ID == "" {
		fragment.ID = sourcePath
	}

	if err := d.validator.Struct(fragment); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Tag() == "variable_name" {
					return nil, engine.Validation("invalid variable name %q", fe.Value()).
						WithVariable(fmt.Sprint(fe.Value())).
						WithFragment(sourcePath)
				}
			}
		}
		return nil, engine.NewPermanentError("invalid fragment", err).
			WithCode(engine.ErrCodeValidation).
			WithFragment(sourcePath)
	}

	return fragment, nil
}

// fragmentDocument is the on-disk shape of a fragment. Variables stay a node so that
// declaration order survives decoding.
type fragmentDocument struct {
	ID           string    `yaml:"id"`
	Variables    yaml.Node `yaml:"variables"`
	Dependencies []string  `yaml:"dependencies"`
	Environments []string  `yaml:"environments"`
}

// decodeVariables flattens a mapping node into ordered variables, stringifying scalars.
func decodeVariables(node *yaml.Node) ([]Variable, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, engine.Validation("'variables' must be a mapping")
	}

	variables := make([]Variable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind == yaml.AliasNode {
			value = value.Alias
		}
		if value.Kind != yaml.ScalarNode {
			return nil, engine.Validation("variable value must be a scalar").WithVariable(key.Value)
		}
		v := Variable{Name: key.Value, Value: value.Value}
		if value.Tag == "!!null" {
			v.Value = ""
		}
		variables = append(variables, v)
	}
	return variables, nil
}
