// Package runctx holds the per-run aggregate threaded through the pipeline:
// current layer and mode, model names, grimoire choices, the prompt recorded
// at each stage, and the decision history.
package runctx
