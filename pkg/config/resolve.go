package config

import (
	"github.com/draky-dev/draky/pkg/engine"
)

// SelectUniversal returns the fragments that are not scoped to any environment.
func SelectUniversal(fragments []*Fragment) []*Fragment {
	out := make([]*Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f.IsUniversal() {
			out = append(out, f)
		}
	}
	return out
}

// SelectForEnvironment returns the universal fragments together with the fragments
// scoped to env, in discovery order.
func SelectForEnvironment(fragments []*Fragment, env string) []*Fragment {
	out := make([]*Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f.IsUniversal() || f.AppliesTo(env) {
			out = append(out, f)
		}
	}
	return out
}

// SortByDependency orders fragments so that each one follows all of its dependencies.
// Only the given fragments are considered when checking that dependencies exist.
func SortByDependency(fragments []*Fragment) ([]*Fragment, error) {
	nodes := make([]engine.Node, len(fragments))
	byID := make(map[string]*Fragment, len(fragments))
	for i, f := range fragments {
		nodes[i] = engine.Node{ID: f.ID, Source: f.SourcePath, Dependencies: f.Dependencies}
		byID[f.ID] = f
	}

	order, err := engine.NewDAGBuilder().Sort(nodes)
	if err != nil {
		return nil, err
	}

	sorted := make([]*Fragment, len(order))
	for i, id := range order {
		sorted[i] = byID[id]
	}
	return sorted, nil
}

// DependencyGraph renders the dependency graph of fragments in DOT format.
func DependencyGraph(fragments []*Fragment) (string, error) {
	nodes := make([]engine.Node, len(fragments))
	for i, f := range fragments {
		nodes[i] = engine.Node{ID: f.ID, Source: f.SourcePath, Dependencies: f.Dependencies}
	}

	builder := engine.NewDAGBuilder()
	if _, err := builder.Sort(nodes); err != nil {
		return "", err
	}
	return builder.ToDOT(), nil
}

// SelectEnvironment picks the active environment from the universal pass variables.
func SelectEnvironment(universal *VariableSet) string {
	if env, ok := universal.Get(VarEnvironment); ok && env != "" {
		return env
	}
	return DefaultEnvironment
}

// Addons returns the descriptors of the addon fragments, in the given order.
func Addons(fragments []*Fragment) []Addon {
	out := make([]Addon, 0)
	for _, f := range fragments {
		if f.Kind == KindAddon {
			out = append(out, f.Addon())
		}
	}
	return out
}
