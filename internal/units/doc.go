// Package units discovers migration units: independently runnable, idempotent
// scripts stored in a single directory.
package units
