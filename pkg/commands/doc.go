// Package commands discovers the custom commands of a project.
//
// A custom command is a shell script anywhere under .draky/ named
// <name>.dk.sh (runs on the host) or <name>.<service>.dk.sh (runs inside the
// service container). An optional <script>.yml companion provides help text and
// the container user:
//
//	help: Run the test suite
//	user: www-data
package commands
