package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestDAGBuilder_Sort_Empty(t *testing.T) {
	builder := NewDAGBuilder()
	order, err := builder.Sort([]Node{})

	if err != nil {
		t.Fatalf("Expected no error for empty nodes, got: %v", err)
	}

	if len(order) != 0 {
		t.Errorf("Expected empty order, got %v", order)
	}
}

func TestDAGBuilder_Sort_LinearDependencies(t *testing.T) {
	nodes := []Node{
		{ID: "ext", Source: "ext.dk.yml", Dependencies: []string{"base"}},
		{ID: "base", Source: "base.dk.yml"},
	}

	builder := NewDAGBuilder()
	order, err := builder.Sort(nodes)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if strings.Join(order, ",") != "base,ext" {
		t.Errorf("Expected [base ext], got %v", order)
	}

	levels := builder.GetLevels()
	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels, got %d", len(levels))
	}
	if levels[0][0] != "base" || levels[1][0] != "ext" {
		t.Errorf("Unexpected levels: %v", levels)
	}
}

func TestDAGBuilder_Sort_StableTies(t *testing.T) {
	// Independent nodes keep their input order.
	nodes := []Node{
		{ID: "c", Source: "c"},
		{ID: "a", Source: "a"},
		{ID: "b", Source: "b", Dependencies: []string{"d"}},
		{ID: "d", Source: "d"},
	}

	want := "c,a,d,b"
	for i := 0; i < 5; i++ {
		order, err := NewDAGBuilder().Sort(nodes)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got := strings.Join(order, ","); got != want {
			t.Fatalf("run %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestDAGBuilder_Sort_Diamond(t *testing.T) {
	nodes := []Node{
		{ID: "top", Dependencies: []string{"left", "right"}},
		{ID: "left", Dependencies: []string{"root"}},
		{ID: "right", Dependencies: []string{"root"}},
		{ID: "root"},
	}

	order, err := NewDAGBuilder().Sort(nodes)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	position := make(map[string]int)
	for i, id := range order {
		position[id] = i
	}
	for _, node := range nodes {
		for _, dep := range node.Dependencies {
			if position[dep] > position[node.ID] {
				t.Errorf("%s must come after %s, order: %v", node.ID, dep, order)
			}
		}
	}
}

func TestDAGBuilder_Sort_UnmetDependencies(t *testing.T) {
	nodes := []Node{
		{ID: "a", Source: "a.dk.yml", Dependencies: []string{"missing1"}},
		{ID: "b", Source: "sub/b.dk.yml", Dependencies: []string{"a", "missing2"}},
	}

	_, err := NewDAGBuilder().Sort(nodes)
	if err == nil {
		t.Fatal("Expected error for unmet dependencies")
	}

	if !HasCode(err, ErrCodeUnmetDependency) {
		t.Errorf("Expected unmet dependency code, got: %v", err)
	}

	msg := err.Error()
	for _, want := range []string{"'missing1' in 'a.dk.yml'", "'missing2' in 'sub/b.dk.yml'"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected error to contain %q, got: %s", want, msg)
		}
	}
}

func TestDAGBuilder_Sort_Cycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}

	_, err := NewDAGBuilder().Sort(nodes)
	if err == nil {
		t.Fatal("Expected error for circular dependency")
	}

	if !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle code, got: %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("Expected cycle path in error, got: %s", err.Error())
	}
}

func TestDAGBuilder_Sort_SelfDependency(t *testing.T) {
	_, err := NewDAGBuilder().Sort([]Node{{ID: "a", Dependencies: []string{"a"}}})
	if !HasCode(err, ErrCodeCycle) {
		t.Fatalf("Expected cycle error, got: %v", err)
	}
}

func TestDAGBuilder_Sort_DuplicateID(t *testing.T) {
	nodes := []Node{
		{ID: "a", Source: "one.dk.yml"},
		{ID: "a", Source: "two.dk.yml"},
	}

	_, err := NewDAGBuilder().Sort(nodes)
	if err == nil {
		t.Fatal("Expected error for duplicate id")
	}

	var engineErr *Error
	if !errors.As(err, &engineErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if engineErr.Fragment != "two.dk.yml" {
		t.Errorf("Expected fragment two.dk.yml, got %s", engineErr.Fragment)
	}
}

func TestDAGBuilder_ToDOT(t *testing.T) {
	builder := NewDAGBuilder()
	if _, err := builder.Sort([]Node{
		{ID: "base", Source: "base.dk.yml"},
		{ID: "ext", Source: "ext.dk.yml", Dependencies: []string{"base"}},
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dot := builder.ToDOT()
	if !strings.Contains(dot, `"base" -> "ext"`) {
		t.Errorf("Expected edge in DOT output, got:\n%s", dot)
	}
	if !strings.Contains(dot, "cluster_level_1") {
		t.Errorf("Expected two levels in DOT output, got:\n%s", dot)
	}
}
