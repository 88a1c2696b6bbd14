// Package logs tails layerforge.log for the `layergen logs` command.
//
// It reads the last N lines with bounded memory, resumes from byte offsets in
// follow mode, and can keep only the lines of one run or one layer. Both the
// console and JSON log formats are recognised by the filter.
package logs
