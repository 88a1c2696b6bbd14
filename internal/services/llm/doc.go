// Package llm is the OpenAI-compatible chat completions provider.
//
// One Client serves any endpoint that speaks the chat completions schema:
// OpenAI, OpenRouter, Groq, and Gemini's compatibility endpoint. The router
// builds one client per route and calls Complete with a single user message.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default),
// honouring Retry-After. Context cancellation aborts retries immediately.
//
// # Empty Responses
//
// A response without usable text fails with an error matching
// ErrEmptyContent. It is not retried here: the router owns that policy and
// retries once on the lite model.
package llm
