// Package textutil provides text helpers shared by the pipeline: canonical
// run names, filesystem-safe tokens, code fence stripping, and token
// estimates for LLM budgets.
package textutil
