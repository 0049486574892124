// Package logging assembles structured slog loggers and formatting helpers used
// across rawbench.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so adapter code automatically
// tags log lines with run identifiers, dataset names, and steps. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
