// Package fanout generates many targets from one manifest.
//
// A manifest lists one project-relative path per line. Each path expands to a
// Set; sets sharing a target are merged into a single "_merged" source whose
// blocks are headed by "# Source: <path>". The engine then runs the converter
// for every merged set on a bounded errgroup, handing each task its own
// RunContext snapshot and merging the task results once every task is done.
// Sibling tasks complete in no particular order.
package fanout
