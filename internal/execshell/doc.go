// Package execshell provides structured helpers for invoking migration units
// and other external scripts.
//
// It wraps os/exec with live output passthrough, per-command timeouts, and
// logging via ShellExecutor, exposes OSCommandRunner for default process
// execution, and reports failures through typed errors so callers can turn
// them into run outcomes without parsing text.
package execshell
