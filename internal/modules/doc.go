// Package modules contains the self-contained HTTP features of the server.
//
// Each subdirectory is a module that implements the `module.Module` interface.
// Modules are listed in `internal/app/modules.go` and are registered and
// booted by the server at startup.
package modules
