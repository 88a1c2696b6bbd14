package testsupport

import (
	"context"
	"sync"

	"layerforge/internal/services/llm"
)

// FakeLLM answers completions from a function and counts calls.
type FakeLLM struct {
	mu      sync.Mutex
	Calls   []llm.Request
	Respond func(req llm.Request) (string, error)
}

// Complete records req and returns Respond's answer, or "ok" when unset.
func (f *FakeLLM) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	respond := f.Respond
	f.mu.Unlock()
	if respond == nil {
		return llm.Completion{Text: "ok", Model: req.Model}, nil
	}
	text, err := respond(req)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: text, Model: req.Model, InputTokens: len(req.Prompt) / 4, OutputTokens: len(text) / 4}, nil
}

// Count returns the number of completions requested.
func (f *FakeLLM) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Reset forgets recorded calls.
func (f *FakeLLM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}
