// Package prompt composes the prompts sent to the router and persists them
// per layer and target so the next run can tell whether anything changed.
package prompt
