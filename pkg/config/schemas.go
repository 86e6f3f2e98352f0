package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry holds the CUE schemas documents are checked against before decoding.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// Built-in schema names.
const (
	SchemaFragment = "fragment"
	SchemaCommand  = "command"
)

// NewSchemaRegistry creates a new schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-ins are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema(SchemaFragment, "#Fragment", builtinFragmentSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaCommand, "#Command", builtinCommandSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and registers the definition it declares under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema %s does not declare %s: %w", name, definition, err)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns the registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAgainstSchema validates decoded data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data any) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateFragment validates a decoded fragment document.
func (sr *SchemaRegistry) ValidateFragment(ctx context.Context, document map[string]any) error {
	return sr.ValidateAgainstSchema(ctx, SchemaFragment, document)
}

const builtinFragmentSchema = `
#Scalar: string | number | bool | null

#Fragment: {
	// Id is referenced from other fragments' dependencies.
	id?: string & !=""

	// Variables are exported to every command.
	variables?: {
		[=~"^[A-Za-z_][A-Za-z0-9_]*$"]: #Scalar
		[!~"^[A-Za-z_][A-Za-z0-9_]*$"]: _|_
	}

	// Dependencies are ids of fragments applied before this one.
	dependencies?: [...string & !=""]

	// Environments scope the fragment; absent or empty means universal.
	environments?: [...string & !=""]

	...
}
`

const builtinCommandSchema = `
#Command: {
	// Help is shown in the command list.
	help?: string

	// User runs the command as this user inside the container.
	user?: string | int

	...
}
`
