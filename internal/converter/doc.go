// Package converter implements the per-target regeneration decision.
//
// A missing or near-empty target is generated from the composed prompt. An
// existing target is skipped when both the final prompt and the recorded
// source hash are unchanged. Otherwise the whitespace-insensitive source diff
// decides: large diffs regenerate, small ones are scored by the lite model and
// then skipped, patched through a proposed unified diff, or regenerated.
//
// Every written target carries a "# HASH:" trailer and a sidecar record bound
// to the source it was produced from, and the live files are archived under
// past/ for the next run's diff.
package converter
