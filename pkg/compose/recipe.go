package compose

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/draky-dev/draky/pkg/engine"
)

// Well-known keys.
const (
	// ServicesKey holds the service definitions of recipes and compose documents.
	ServicesKey = "services"

	// MetadataKey is the per-service block private to draky. It never reaches the
	// compose runtime.
	MetadataKey = "draky"

	// AddonsKey lists the addon ids associated with a service, inside MetadataKey.
	AddonsKey = "addons"

	extendsKey = "extends"
	versionKey = "version"
	volumesKey = "volumes"
)

// Recipe is the declarative precursor of a compose document.
type Recipe struct {
	content map[string]any
}

// ParseRecipe decodes and validates a recipe document.
func ParseRecipe(data []byte) (*Recipe, error) {
	content, err := decodeDocument(data)
	if err != nil {
		return nil, engine.NewPermanentError("failed to parse recipe", err).
			WithCode(engine.ErrCodeParse)
	}
	return NewRecipe(content)
}

// decodeDocument unmarshals a compose-like document. A scalar version keeps its source
// text, so an unquoted 3.10 is not read back as the float 3.1.
func decodeDocument(data []byte) (map[string]any, error) {
	var content map[string]any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	if _, ok := content[versionKey]; !ok {
		return content, nil
	}

	var raw struct {
		Version yaml.Node `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &raw); err == nil &&
		raw.Version.Kind == yaml.ScalarNode && raw.Version.Tag != "!!null" {
		content[versionKey] = raw.Version.Value
	}
	return content, nil
}

// NewRecipe validates already decoded recipe content.
func NewRecipe(content map[string]any) (*Recipe, error) {
	services, ok := content[ServicesKey]
	if !ok {
		return nil, engine.Validation("the '%s' section is required in the recipe file", ServicesKey)
	}
	switch services.(type) {
	case nil:
		content[ServicesKey] = map[string]any{}
	case map[string]any:
	default:
		return nil, engine.Validation("the '%s' section of the recipe must be a mapping", ServicesKey)
	}
	return &Recipe{content: content}, nil
}

// LoadRecipe reads and parses the recipe at path.
func LoadRecipe(fs afero.Fs, path string) (*Recipe, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, engine.NewPermanentError("failed to read recipe", err).
			WithCode(engine.ErrCodeIO).
			WithFile(path)
	}

	recipe, err := ParseRecipe(data)
	if err != nil {
		var e *engine.Error
		if errors.As(err, &e) {
			return nil, e.WithFile(path)
		}
		return nil, err
	}
	return recipe, nil
}

// Services returns the service definitions keyed by name.
func (r *Recipe) Services() map[string]any {
	return r.content[ServicesKey].(map[string]any)
}

// ServiceNames returns the service names, sorted.
func (r *Recipe) ServiceNames() []string {
	return sortedKeys(r.Services())
}

// TopLevel returns every top-level key except services.
func (r *Recipe) TopLevel() map[string]any {
	out := make(map[string]any, len(r.content))
	for k, v := range r.content {
		if k != ServicesKey {
			out[k] = v
		}
	}
	return out
}

// Addons returns the addon ids associated with a service.
func (r *Recipe) Addons(service string) ([]string, error) {
	definition, ok := r.Services()[service]
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("unknown service %q", service), nil).
			WithCode(engine.ErrCodeNotFound).
			WithService(service)
	}
	mapping, _ := definition.(map[string]any)
	addons, err := addonsOf(mapping)
	if err != nil {
		return nil, err.WithService(service)
	}
	return addons, nil
}

// addonsOf reads the addon ids from a service's private metadata.
func addonsOf(service map[string]any) ([]string, *engine.Error) {
	metadata, ok := service[MetadataKey]
	if !ok || metadata == nil {
		return nil, nil
	}
	block, ok := metadata.(map[string]any)
	if !ok {
		return nil, engine.Validation("the '%s' block must be a mapping", MetadataKey)
	}

	raw, ok := block[AddonsKey]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, engine.Validation("'%s.%s' must be a list", MetadataKey, AddonsKey)
	}

	addons := make([]string, 0, len(list))
	for _, item := range list {
		id, ok := item.(string)
		if !ok {
			return nil, engine.Validation("'%s.%s' must only contain addon ids", MetadataKey, AddonsKey)
		}
		addons = append(addons, id)
	}
	return addons, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
