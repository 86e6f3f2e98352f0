package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Node is a single vertex of a dependency graph.
type Node struct {
	// ID is the unique identifier of the node.
	ID string

	// Source is where the node was declared (used in error messages).
	Source string

	// Dependencies are the ids this node must come after.
	Dependencies []string
}

// DAGBuilder builds a directed acyclic graph from nodes and orders them topologically.
// Ordering is stable: whenever several nodes are ready, the one given first wins.
type DAGBuilder struct {
	// nodes in input order
	nodes []Node

	// index maps node IDs to their input position
	index map[string]int

	// adjacencyList maps node IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps node IDs to their (deduplicated) dependencies
	reverseAdjacencyList map[string][]string

	// levels maps depth to node IDs at that depth
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		index:                make(map[string]int),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		levels:               make([][]string, 0),
	}
}

// Sort validates the graph and returns node IDs so that every node appears after all
// of its dependencies.
func (b *DAGBuilder) Sort(nodes []Node) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}

	if err := b.initialize(nodes); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	return b.stableOrder()
}

// initialize indexes the nodes and validates their dependencies.
func (b *DAGBuilder) initialize(nodes []Node) error {
	b.nodes = nodes

	for i, node := range nodes {
		if node.ID == "" {
			return NewPermanentError("node has empty ID", nil).
				WithCode(ErrCodeValidation).
				WithFragment(node.Source)
		}

		if prev, exists := b.index[node.ID]; exists {
			return NewPermanentError(
				fmt.Sprintf("duplicate id %q, also declared in %s", node.ID, nodes[prev].Source),
				nil,
			).WithCode(ErrCodeValidation).WithFragment(node.Source)
		}

		b.index[node.ID] = i
		b.adjacencyList[node.ID] = make([]string, 0)
		b.reverseAdjacencyList[node.ID] = make([]string, 0)
	}

	// Every unmet dependency is reported, not only the first one.
	var unmet *multierror.Error
	for _, node := range nodes {
		seen := make(map[string]bool, len(node.Dependencies))
		for _, dep := range node.Dependencies {
			if seen[dep] {
				continue
			}
			seen[dep] = true

			if _, exists := b.index[dep]; !exists {
				unmet = multierror.Append(unmet, NewPermanentError(
					fmt.Sprintf("'%s' in '%s'", dep, node.Source), nil,
				).WithCode(ErrCodeUnmetDependency).WithDependency(dep).WithFragment(node.Source))
				continue
			}

			// Edge from dependency to dependent.
			b.adjacencyList[dep] = append(b.adjacencyList[dep], node.ID)
			b.reverseAdjacencyList[node.ID] = append(b.reverseAdjacencyList[node.ID], dep)
		}
	}

	if unmet != nil {
		unmet.ErrorFormat = formatUnmet
		return NewPermanentError("the following dependencies are unmet", unmet).
			WithCode(ErrCodeUnmetDependency)
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, node := range b.nodes {
		if visited[node.ID] {
			continue
		}
		if cycle := b.detectCyclesUtil(node.ID, visited, recStack, nil); cycle != nil {
			return NewPermanentError(
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)),
				nil,
			).WithCode(ErrCodeCycle).WithDependency(cycle[0])
		}
	}

	return nil
}

// detectCyclesUtil walks dependencies depth-first and returns the cycle path if one is found.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dep := range b.reverseAdjacencyList[nodeID] {
		if !visited[dep] {
			if cycle := b.detectCyclesUtil(dep, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, id := range path {
				if id == dep {
					cycle := make([]string, 0, len(path)-i+1)
					cycle = append(cycle, path[i:]...)
					return append(cycle, dep)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// stableOrder runs Kahn's algorithm, always taking the earliest ready node in input order.
func (b *DAGBuilder) stableOrder() ([]string, error) {
	inDegree := make(map[string]int, len(b.nodes))
	level := make(map[string]int, len(b.nodes))
	for _, node := range b.nodes {
		inDegree[node.ID] = len(b.reverseAdjacencyList[node.ID])
	}

	done := make([]bool, len(b.nodes))
	order := make([]string, 0, len(b.nodes))

	for len(order) < len(b.nodes) {
		next := -1
		for i, node := range b.nodes {
			if !done[i] && inDegree[node.ID] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			// Cycle detection should have caught this already.
			return nil, NewPermanentError("failed to order all nodes - possible cycle", nil).
				WithCode(ErrCodeInternal)
		}

		id := b.nodes[next].ID
		done[next] = true
		order = append(order, id)

		for _, dep := range b.reverseAdjacencyList[id] {
			if level[dep]+1 > level[id] {
				level[id] = level[dep] + 1
			}
		}
		for len(b.levels) <= level[id] {
			b.levels = append(b.levels, make([]string, 0))
		}
		b.levels[level[id]] = append(b.levels[level[id]], id)

		for _, dependent := range b.adjacencyList[id] {
			inDegree[dependent]--
		}
	}

	return order, nil
}

// GetLevels returns the computed depth levels. Nodes in the same level do not depend
// on each other.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT format representation of the DAG for visualization.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Fragments {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			node := b.nodes[b.index[id]]
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\\n%s\"];\n", id, id, node.Source))
		}

		sb.WriteString("  }\n\n")
	}

	for _, node := range b.nodes {
		for _, dep := range b.reverseAdjacencyList[node.ID] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, node.ID))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// formatUnmet renders collected unmet dependencies one per line.
func formatUnmet(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		var e *Error
		if errors.As(err, &e) {
			lines = append(lines, e.Message)
			continue
		}
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}
