package engine_test

import (
	"fmt"

	"github.com/draky-dev/draky/pkg/engine"
)

// Example demonstrates ordering config fragments by their dependencies.
func Example_sortFragments() {
	nodes := []engine.Node{
		{ID: "php", Source: "addons/php/php.addon.dk.yml", Dependencies: []string{"core"}},
		{ID: "core", Source: "core.dk.yml"},
		{ID: "local", Source: "local.dk.yml", Dependencies: []string{"php", "core"}},
	}

	order, err := engine.NewDAGBuilder().Sort(nodes)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(order)
	// Output: [core php local]
}

// Example demonstrates the error reported for a dependency cycle.
func Example_cycle() {
	_, err := engine.NewDAGBuilder().Sort([]engine.Node{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})

	fmt.Println(err)
	// Output: circular dependency detected: a -> b -> a (dependency=a)
}
