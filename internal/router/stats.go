package router

import (
	"sort"
	"sync"
)

// ModelUsage aggregates the calls made to one model.
type ModelUsage struct {
	Model        string
	Requests     int
	Failures     int
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output tokens.
func (u ModelUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// AverageTokens returns total tokens per successful request.
func (u ModelUsage) AverageTokens() float64 {
	if u.Requests == 0 {
		return 0
	}
	return float64(u.TotalTokens()) / float64(u.Requests)
}

// Stats collects per-model usage for the end-of-run report. It is created by
// the caller and shared by every router call of a run.
type Stats struct {
	mu      sync.Mutex
	byModel map[string]*ModelUsage
}

// NewStats returns an empty collector.
func NewStats() *Stats {
	return &Stats{byModel: make(map[string]*ModelUsage)}
}

func (s *Stats) entry(model string) *ModelUsage {
	u, ok := s.byModel[model]
	if !ok {
		u = &ModelUsage{Model: model}
		s.byModel[model] = u
	}
	return u
}

// Record adds one successful request.
func (s *Stats) Record(model string, inputTokens, outputTokens int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.entry(model)
	u.Requests++
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
}

// RecordFailure adds one failed request.
func (s *Stats) RecordFailure(model string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(model).Failures++
}

// Snapshot returns usage sorted by model name.
func (s *Stats) Snapshot() []ModelUsage {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModelUsage, 0, len(s.byModel))
	for _, u := range s.byModel {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Total sums usage across models.
func (s *Stats) Total() ModelUsage {
	var total ModelUsage
	for _, u := range s.Snapshot() {
		total.Requests += u.Requests
		total.Failures += u.Failures
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
	}
	return total
}
