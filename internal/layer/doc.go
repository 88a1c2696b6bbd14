// Package layer defines the ordered pipeline stages and the prompt-folding
// modes the orchestrator walks through.
//
// Layers carry their level in the numeric prefix of their name, which lets a
// new stage be inserted between two existing ones without renumbering. The
// state machine only moves forward: Next always returns a layer with a
// strictly greater level, and the terminal layer has no successor.
package layer
