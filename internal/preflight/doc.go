// Package preflight provides readiness checks for the directories, LLM
// routes, and interpreters a layerforge run depends on.
//
// The CLI "layergen preflight" command runs RunAll and renders the results.
// Route checks only confirm an API key is configured unless a live check is
// requested, in which case each route receives a single short completion.
package preflight
