package compose

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/draky-dev/draky/pkg/engine"
)

// Header is written at the top of every generated compose file.
const Header = "# This file is auto-generated by draky. Do not edit it manually.\n"

// Compose is an expanded compose document.
type Compose struct {
	path       string
	content    map[string]any
	resolver   Resolver
	substitute bool
	recipe     *Recipe
}

func newCompose(path string, content map[string]any, resolver Resolver, recipe *Recipe) *Compose {
	return &Compose{
		path:     path,
		content:  content,
		resolver: resolver,
		recipe:   recipe,
	}
}

// Path is where the document is written. Relative paths inside it are relative to this
// location.
func (c *Compose) Path() string {
	return c.path
}

// Recipe returns the recipe the document was expanded from.
func (c *Compose) Recipe() *Recipe {
	return c.recipe
}

// Content returns the document. Changes to it are reflected in Marshal.
func (c *Compose) Content() map[string]any {
	return c.content
}

// Services returns the service names, sorted.
func (c *Compose) Services() []string {
	services, _ := c.content[ServicesKey].(map[string]any)
	return sortedKeys(services)
}

// Service returns the definition of a service. The mapping is live: mutating it alters
// the document.
func (c *Compose) Service(name string) (map[string]any, error) {
	services, _ := c.content[ServicesKey].(map[string]any)
	service, ok := services[name].(map[string]any)
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("service %q doesn't exist", name), nil).
			WithCode(engine.ErrCodeNotFound).
			WithService(name)
	}
	return service, nil
}

// SetService replaces the definition of a service.
func (c *Compose) SetService(name string, service map[string]any) {
	services, ok := c.content[ServicesKey].(map[string]any)
	if !ok {
		services = make(map[string]any)
		c.content[ServicesKey] = services
	}
	services[name] = service
}

// Addons returns the addon ids associated with a service. Only documents expanded with
// WithUncleaned carry them.
func (c *Compose) Addons(name string) ([]string, error) {
	service, err := c.Service(name)
	if err != nil {
		return nil, err
	}
	addons, verr := addonsOf(service)
	if verr != nil {
		return nil, verr.WithService(name)
	}
	return addons, nil
}

// SetSubstituteVariables controls whether variable references are replaced when the
// document is serialized.
func (c *Compose) SetSubstituteVariables(substitute bool) {
	c.substitute = substitute
}

// SubstituteVariables reports whether variable references are replaced on serialization.
func (c *Compose) SubstituteVariables() bool {
	return c.substitute
}

// Marshal serializes the document. Substitution, when enabled, runs on the final text.
func (c *Compose) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header)

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c.content); err != nil {
		return nil, engine.NewPermanentError("failed to serialize compose document", err).
			WithCode(engine.ErrCodeInternal).
			WithFile(c.path)
	}
	if err := encoder.Close(); err != nil {
		return nil, engine.NewPermanentError("failed to serialize compose document", err).
			WithCode(engine.ErrCodeInternal).
			WithFile(c.path)
	}

	if !c.substitute || c.resolver == nil {
		return buf.Bytes(), nil
	}

	resolved, err := c.resolver.Resolve(buf.String())
	if err != nil {
		var e *engine.Error
		if errors.As(err, &e) {
			return nil, e.WithFile(c.path)
		}
		return nil, err
	}
	return []byte(resolved), nil
}

// Save writes the document to its path.
func (c *Compose) Save(fs afero.Fs) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return engine.NewPermanentError("failed to create compose directory", err).
			WithCode(engine.ErrCodeIO).
			WithFile(c.path)
	}
	if err := afero.WriteFile(fs, c.path, data, os.FileMode(0o644)); err != nil {
		return engine.NewPermanentError("failed to write compose file", err).
			WithCode(engine.ErrCodeIO).
			WithFile(c.path)
	}
	return nil
}
