// Package services defines shared utilities consumed by the pipeline layer
// handlers and the LLM provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, layer names, target paths, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent run statuses (failed vs invalid).
//
// Use these helpers when wiring new layer logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
