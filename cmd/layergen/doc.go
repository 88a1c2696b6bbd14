// Package main hosts the layergen CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into pipeline runs,
// ledger queries, template listings, readiness checks, and configuration
// scaffolding. Configuration is resolved lazily so commands that do not need
// it (config init) still work on a fresh machine.
//
// Keep this package lean: behavior belongs in internal packages and is only
// surfaced here through flags and rendering.
package main
