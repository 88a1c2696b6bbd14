// Package anthropic is the Claude provider for the router, built on the
// official anthropic-sdk-go Messages API.
package anthropic
