// Package envbuild turns the resolved configuration of a project into the compose
// file of its active environment.
//
// A build runs four phases, each traced and timed through the telemetry package:
//
//  1. recipe: load docker-compose.recipe.yml of the environment, if any
//  2. expand: resolve extends, merge top-level keys and rebase paths
//  3. hooks: run the alter_service hook of every addon on the services using it
//  4. save: write docker-compose.yml next to the recipe
//
// Watcher repeats the build whenever a fragment, recipe, extended file or hook
// changes.
package envbuild
