// Package workflow drives a run through the generation layers.
//
// The Orchestrator owns the run context. It takes the work-directory lock,
// walks the layers from the requested start to the requested end, and hands
// each layer to its registered stage handler: single conversions for the
// document layers, manifest fan-outs for the per-file layers, then code
// execution repair and clean-up. Every layer and every per-target decision is
// journalled in the ledger, and the run ends with a summary of decisions and
// model usage.
//
// Layer paths derive from the run's canonical name, so a run can start at any
// layer and read the outputs of earlier runs from disk.
package workflow
