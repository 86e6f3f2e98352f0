// Package runtime runs the container runtime and user scripts for a project.
//
// Every compose invocation has the form
//
//	docker compose -p <project id> -f <environment>/docker-compose.yml ...
//
// and runs with the resolved project variables as its environment. The Executor
// interface is the seam tests use to observe invocations without Docker.
package runtime
