// Package logging assembles structured slog loggers and formatting helpers used
// across layerforge.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so layer code automatically tags log lines with
// run IDs, layer names, and target paths. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
