// Package config discovers and resolves the layered configuration of a draky project.
//
// # Overview
//
// A project is any directory containing a .draky directory. Every file below it matching
// **/*.dk.yml is a config fragment. The file name decides the fragment kind:
//
//	core.dk.yml                 basic
//	addons/php/php.addon.dk.yml addon
//	base.template.dk.yml        template
//
// A fragment may declare an id, ordered variables, dependencies on other fragment ids and
// the environments it is scoped to:
//
//	id: php
//	dependencies:
//	  - core
//	environments:
//	  - dev
//	variables:
//	  DRAKY_PHP_VERSION: "8.3"
//	  PHP_MEMORY_LIMIT: 512M
//
// Basic fragments without an id are identified by their path relative to .draky.
// Addon and template fragments must declare one.
//
// # Resolution
//
// Manager.Load resolves variables in two passes. The universal pass merges the fragments
// without environments and decides the active environment (DRAKY_ENVIRONMENT, default
// "dev"). The environment pass merges the universal fragments together with the fragments
// scoped to that environment. In both passes:
//
//  1. fragments are sorted by dependency, ties kept in discovery order
//  2. their variables are applied in that order, later values winning
//  3. DRAKY_* variables of the process environment are applied last, as one batch
//
// The environment pass finally forces DRAKY_ENVIRONMENT and DRAKY_ENVIRONMENT_PATH to the
// selected environment.
//
// # Schemas
//
// Fragment documents are checked against the #Fragment CUE schema before decoding, and
// the decoded Fragment is validated with struct tags.
//
// # Variable References
//
// ResolveReferences replaces ${NAME} placeholders, where NAME is made of upper case letters
// and underscores. Replacement is literal and unknown names are an error:
//
//	vars := config.NewVariableSet()
//	vars.Set("DB_NAME", "shop")
//	out, _ := config.ResolveReferences("db_${DB_NAME}", vars) // "db_shop"
package config
