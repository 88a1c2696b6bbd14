// Package router sends completion requests to LLM providers.
//
// Each configured route pairs a provider client with its model and
// per-minute request/token budgets. A request goes to the route matching its
// model (by route name, model id, or inferred provider) and, on failure, to
// every other route: the primary first, then the rest in declaration order.
//
// Budgets are enforced locally with token buckets, a circuit breaker skips
// routes that keep failing, every call runs under its own deadline, and
// temperature-0 responses are memoised. Empty responses are retried once on
// the lite model before an empty completion is returned. Usage is collected
// in a Stats value injected by the caller.
package router
