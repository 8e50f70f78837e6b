// Package cli constructs the propsync command-line interface, wiring the Cobra command
// hierarchy, the configuration loader, and structured logging. Migration commands receive the
// run journal and database preflight as injected collaborators.
package cli
