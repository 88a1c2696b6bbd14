// Package artifact tracks the files a generation unit reads and writes.
//
// Every unit has a source, a target, and an optional context. Each live file
// is mirrored under past/{source,target,context} using its work-directory
// relative path, so the next run can diff the current source against the one
// that produced the existing target. Generated targets end with a
// "# HASH: <sha256>" trailer and get a JSON sidecar under meta/ carrying the
// same fingerprint plus generation metadata.
package artifact
