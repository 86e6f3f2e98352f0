package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/draky-dev/draky/pkg/engine"
)

// referencePattern matches ${NAME} placeholders.
var referencePattern = regexp.MustCompile(`\$\{([A-Z_]+)\}`)

// Environment is a snapshot of the process environment, captured once per invocation.
type Environment map[string]string

// NewEnvironment parses KEY=VALUE entries as returned by os.Environ.
func NewEnvironment(entries []string) Environment {
	env := make(Environment, len(entries))
	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}

// Lookup returns the value of name and whether it is set.
func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// With returns a copy of the environment with name set to value.
func (e Environment) With(name, value string) Environment {
	out := make(Environment, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[name] = value
	return out
}

// Reserved returns the names carrying VariablePrefix, sorted.
func (e Environment) Reserved() []string {
	names := make([]string, 0)
	for name := range e {
		if strings.HasPrefix(name, VariablePrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Environ renders the environment for a child process with vars laid on top. Entries
// of the environment come first, sorted, then vars in their own order.
func (e Environment) Environ(vars *VariableSet) []string {
	names := make([]string, 0, len(e))
	for name := range e {
		if vars != nil {
			if _, ok := vars.Get(name); ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+"="+e[name])
	}
	if vars != nil {
		out = append(out, vars.Environ()...)
	}
	return out
}

// VariableSet is an ordered name to value mapping. Setting an existing name replaces its
// value and keeps its position.
type VariableSet struct {
	names  []string
	values map[string]string
}

// NewVariableSet creates an empty variable set.
func NewVariableSet() *VariableSet {
	return &VariableSet{values: make(map[string]string)}
}

// Set assigns value to name.
func (v *VariableSet) Set(name, value string) {
	if _, exists := v.values[name]; !exists {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// Get returns the value of name and whether it is set.
func (v *VariableSet) Get(name string) (string, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Keys returns the names in insertion order.
func (v *VariableSet) Keys() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Len returns the number of variables.
func (v *VariableSet) Len() int {
	return len(v.names)
}

// Update sets every variable of other, in its order.
func (v *VariableSet) Update(other *VariableSet) {
	for _, name := range other.names {
		v.Set(name, other.values[name])
	}
}

// Clone returns an independent copy.
func (v *VariableSet) Clone() *VariableSet {
	out := NewVariableSet()
	out.Update(v)
	return out
}

// Map returns the variables as a plain map.
func (v *VariableSet) Map() map[string]string {
	out := make(map[string]string, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Environ renders the variables as KEY=VALUE entries for a subprocess.
func (v *VariableSet) Environ() []string {
	out := make([]string, 0, len(v.names))
	for _, name := range v.names {
		out = append(out, name+"="+v.values[name])
	}
	return out
}

// Resolve replaces every ${NAME} placeholder in text.
func (v *VariableSet) Resolve(text string) (string, error) {
	return ResolveReferences(text, v)
}

// Merge folds fragment variables in the given order, then overlays every reserved
// variable of the process environment as one final batch.
func Merge(fragments []*Fragment, env Environment) *VariableSet {
	vars := NewVariableSet()
	for _, fragment := range fragments {
		for _, variable := range fragment.Variables {
			vars.Set(variable.Name, variable.Value)
		}
	}
	for _, name := range env.Reserved() {
		vars.Set(name, env[name])
	}
	return vars
}

// ResolveReferences substitutes ${NAME} placeholders with values from vars. Substitution is
// literal and is not applied recursively. An unknown name is an error.
func ResolveReferences(text string, vars *VariableSet) (string, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		name := text[m[2]:m[3]]
		value, ok := vars.Get(name)
		if !ok {
			return "", engine.NewPermanentError(
				fmt.Sprintf("variable %q not found", name), nil,
			).WithCode(engine.ErrCodeVariableNotFound).WithVariable(name)
		}
		sb.WriteString(text[last:m[0]])
		sb.WriteString(value)
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}
