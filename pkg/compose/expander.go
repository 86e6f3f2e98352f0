package compose

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/copystructure"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/draky-dev/draky/pkg/engine"
)

// Resolver substitutes variable references in text.
type Resolver interface {
	Resolve(text string) (string, error)
}

// ExpandOption configures a single expansion.
type ExpandOption func(*expandOptions)

type expandOptions struct {
	uncleaned bool
}

// WithUncleaned keeps the private per-service metadata in the result. Used to read addon
// associations; such a document is never written to disk.
func WithUncleaned() ExpandOption {
	return func(o *expandOptions) {
		o.uncleaned = true
	}
}

// Expander turns recipes into self-contained compose documents.
type Expander struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewExpander creates an expander reading extended files from fs.
func NewExpander(fs afero.Fs, logger zerolog.Logger) *Expander {
	return &Expander{
		fs:     fs,
		logger: logger.With().Str("component", "compose").Logger(),
	}
}

// extendedFile is a file referenced by at least one extends block.
type extendedFile struct {
	path     string
	services map[string]any
	topLevel map[string]any
}

// extension is the parsed extends block of one service.
type extension struct {
	file    *extendedFile
	service string
}

// Expand builds the compose document that will be written to outputPath from a recipe
// located at recipePath.
func (e *Expander) Expand(
	recipe *Recipe,
	recipePath string,
	outputPath string,
	resolver Resolver,
	opts ...ExpandOption,
) (*Compose, error) {
	options := &expandOptions{}
	for _, opt := range opts {
		opt(options)
	}

	recipeDir := filepath.Dir(recipePath)
	outputDir := filepath.Dir(outputPath)
	services := recipe.Services()
	names := recipe.ServiceNames()

	// Gather every extended file once.
	files := make(map[string]*extendedFile)
	fileOrder := make([]*extendedFile, 0)
	extensions := make(map[string]*extension)
	for _, name := range names {
		definition, ok := services[name].(map[string]any)
		if !ok {
			return nil, engine.Validation("service definition must be a mapping").
				WithService(name).
				WithFile(recipePath)
		}
		raw, ok := definition[extendsKey]
		if !ok {
			continue
		}

		ext, err := e.parseExtends(name, raw, recipeDir, files, &fileOrder)
		if err != nil {
			return nil, err
		}
		extensions[name] = ext
	}

	content, err := e.mergeTopLevel(recipe, fileOrder)
	if err != nil {
		return nil, err
	}
	named := namedVolumes(content)

	expanded := make(map[string]any, len(names))
	for _, name := range names {
		service, err := e.expandService(name, services[name].(map[string]any), extensions[name], recipeDir, outputDir, named)
		if err != nil {
			return nil, err
		}
		if !options.uncleaned {
			delete(service, MetadataKey)
		}
		expanded[name] = service
	}
	content[ServicesKey] = expanded

	e.logger.Debug().
		Int("services", len(expanded)).
		Int("extended_files", len(fileOrder)).
		Str("recipe", recipePath).
		Bool("uncleaned", options.uncleaned).
		Msg("Expanded recipe")

	return newCompose(outputPath, content, resolver, recipe), nil
}

// parseExtends validates an extends block and loads the file it references.
func (e *Expander) parseExtends(
	name string,
	raw any,
	recipeDir string,
	files map[string]*extendedFile,
	order *[]*extendedFile,
) (*extension, error) {
	block, ok := raw.(map[string]any)
	if !ok {
		return nil, engine.Validation("'%s' must be a mapping", extendsKey).WithService(name)
	}

	file, ok := block["file"].(string)
	if !ok || file == "" {
		return nil, engine.Validation("the 'file' value is required when a service extends another service").
			WithService(name)
	}

	target := name
	if rawService, exists := block["service"]; exists {
		target, ok = rawService.(string)
		if !ok || target == "" {
			return nil, engine.Validation("the 'service' value of '%s' must be a service name", extendsKey).
				WithService(name)
		}
	}

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(recipeDir, file)
	}

	loaded, ok := files[path]
	if !ok {
		var err error
		loaded, err = e.loadExtendedFile(name, path)
		if err != nil {
			return nil, err
		}
		files[path] = loaded
		*order = append(*order, loaded)
	}

	definition, ok := loaded.services[target]
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("the extended file doesn't have a '%s' service", target), nil,
		).WithCode(engine.ErrCodeNotFound).WithService(name).WithFile(path)
	}
	if _, ok := definition.(map[string]any); !ok {
		return nil, engine.Validation("the extended service '%s' must be a mapping", target).
			WithService(name).
			WithFile(path)
	}

	return &extension{file: loaded, service: target}, nil
}

func (e *Expander) loadExtendedFile(service, path string) (*extendedFile, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, engine.NewPermanentError("failed to read extended file", err).
			WithCode(engine.ErrCodeIO).
			WithService(service).
			WithFile(path)
	}

	document, err := decodeDocument(data)
	if err != nil {
		return nil, engine.NewPermanentError("failed to parse extended file", err).
			WithCode(engine.ErrCodeParse).
			WithService(service).
			WithFile(path)
	}

	services, ok := document[ServicesKey].(map[string]any)
	if !ok {
		return nil, engine.Validation("the extended file doesn't have a '%s' mapping", ServicesKey).
			WithService(service).
			WithFile(path)
	}

	topLevel := make(map[string]any, len(document))
	for k, v := range document {
		if k != ServicesKey {
			topLevel[k] = v
		}
	}

	e.logger.Debug().Str("file", path).Int("services", len(services)).Msg("Loaded extended file")

	return &extendedFile{path: path, services: services, topLevel: topLevel}, nil
}

// mergeTopLevel starts from the recipe's own top-level keys and folds in the top-level
// keys of every extended file, in the order the files were first referenced.
func (e *Expander) mergeTopLevel(recipe *Recipe, files []*extendedFile) (map[string]any, error) {
	content, err := deepCopyMap(recipe.TopLevel())
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		for _, key := range sortedKeys(file.topLevel) {
			value, err := deepCopy(file.topLevel[key])
			if err != nil {
				return nil, err
			}
			if existing, ok := content[key]; ok {
				content[key] = MergeTopLevel(key, existing, value)
				continue
			}
			content[key] = value
		}
	}
	return content, nil
}

// expandService produces the effective definition of one service with its paths rewritten
// for outputDir.
func (e *Expander) expandService(
	name string,
	definition map[string]any,
	ext *extension,
	recipeDir string,
	outputDir string,
	named map[string]bool,
) (map[string]any, error) {
	local, err := deepCopyMap(definition)
	if err != nil {
		return nil, err
	}
	delete(local, extendsKey)

	localRebaser, err := newPathRebaser(recipeDir, outputDir, named)
	if err != nil {
		return nil, engine.NewPermanentError("failed to rewrite paths", err).WithService(name)
	}
	localRebaser.rewriteService(local)

	if ext == nil {
		return local, nil
	}

	base, err := deepCopyMap(ext.file.services[ext.service].(map[string]any))
	if err != nil {
		return nil, err
	}
	// Extended definitions may extend further; only one level is resolved.
	delete(base, extendsKey)

	baseRebaser, err := newPathRebaser(filepath.Dir(ext.file.path), outputDir, named)
	if err != nil {
		return nil, engine.NewPermanentError("failed to rewrite paths", err).
			WithService(name).
			WithFile(ext.file.path)
	}
	baseRebaser.rewriteService(base)

	return ShallowMerge(base, local), nil
}

// namedVolumes returns the volume names declared at the top level of a document.
func namedVolumes(content map[string]any) map[string]bool {
	named := make(map[string]bool)
	if volumes, ok := content[volumesKey].(map[string]any); ok {
		for name := range volumes {
			named[name] = true
		}
	}
	return named
}

func deepCopy(v any) (any, error) {
	out, err := copystructure.Copy(v)
	if err != nil {
		return nil, engine.NewPermanentError("failed to copy document", err).
			WithCode(engine.ErrCodeInternal)
	}
	return out, nil
}

func deepCopyMap(m map[string]any) (map[string]any, error) {
	out, err := deepCopy(m)
	if err != nil {
		return nil, err
	}
	copied, _ := out.(map[string]any)
	if copied == nil {
		copied = make(map[string]any)
	}
	return copied, nil
}
