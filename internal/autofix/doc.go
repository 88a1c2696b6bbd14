// Package autofix executes generated programs and repairs failing ones.
//
// A failing file first goes through a bounded number of fix rounds on the
// main model, each fed the program and its error output. When those are
// exhausted, reason-then-fix rounds ask the smart model for a failure
// analysis before asking the main model for a fix. Files that still fail are
// reported as unresolved rather than returned as errors.
package autofix
