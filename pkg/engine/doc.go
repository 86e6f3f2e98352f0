// Package engine provides the error taxonomy and the dependency graph shared by the
// draky configuration pipeline.
//
// # Overview
//
// Every invocation of dk performs one resolution pass:
//
//  1. Discover - find config fragments under .draky (config package)
//  2. Sort - order fragments by declared dependencies (DAGBuilder)
//  3. Merge - fold fragment variables into one VariableSet (config package)
//  4. Expand - turn the environment recipe into a compose document (compose package)
//  5. Hooks - let addons alter their services (hooks package)
//  6. Emit - write the compose document next to the recipe
//
// # Dependency Graph
//
// DAGBuilder sorts nodes topologically. Ties are broken by input order, so the same
// input always produces the same order. Unmet dependencies are collected and reported
// together; cycles are reported with the full path:
//
//	order, err := engine.NewDAGBuilder().Sort([]engine.Node{
//	    {ID: "base", Source: "base.dk.yml"},
//	    {ID: "ext", Source: "ext.dk.yml", Dependencies: []string{"base"}},
//	})
//	// order == []string{"base", "ext"}
//
// # Errors
//
// All failures are *Error values carrying a class, a code and the configuration entity
// that caused them (fragment, service, file, variable or dependency):
//
//	engine.NewPermanentError("service not found", nil).
//	    WithCode(engine.ErrCodeNotFound).
//	    WithService("php").
//	    WithFile("services.yml")
//
// Structural errors are permanent. Resolution is deterministic, so nothing in the
// pipeline retries.
package engine
