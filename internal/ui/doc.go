// Package ui provides helpers for formatting human-readable console output.
//
// The helpers translate command lifecycle events into the run transcript
// (start, success, and failure markers per migration unit) and render the
// closing summary banner, while detailed telemetry continues to flow through
// structured loggers.
package ui
