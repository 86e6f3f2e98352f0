// Package hooks runs addon hooks on compose services.
//
// An addon is associated with services through the private metadata of the recipe:
//
//	services:
//	  php:
//	    draky:
//	      addons: [php]
//
// For every such service the Broker loads the addon's hook from the addon directory and
// calls its alter_service entry point with the service name, the service definition, a
// utils object and the addon descriptor. Hooks are written in Starlark (hooks.star) or
// compiled to WebAssembly (hooks.wasm). An addon without a hook, or a hook without the
// entry point, is skipped.
//
// Hooks are local configuration and are trusted. Each invocation is bounded by a timeout.
package hooks
