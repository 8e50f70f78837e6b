// Package environment assembles the environment overrides handed to each migration unit.
// Overrides apply to child processes only; the orchestrator's own environment is left untouched.
package environment
