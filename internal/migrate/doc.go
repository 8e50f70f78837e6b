// Package migrate orchestrates a best-effort migration run: it discovers migration units,
// orders them, runs each one as an isolated subprocess with a timeout, and reports the
// outcome of every unit without stopping at individual failures.
package migrate
