// Package cleanup prunes a generated project down to the files its manifest
// names, keeping the documents the pipeline itself writes beside them.
package cleanup
