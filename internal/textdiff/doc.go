// Package textdiff computes whitespace-insensitive unified diffs of source
// documents and the diff ratio used to decide whether a change is small
// enough to patch.
package textdiff
