package ledger

import (
	"time"

	"layerforge/internal/services"
)

// Run is one pipeline invocation.
type Run struct {
	ID           string
	Name         string
	StartLayer   string
	EndLayer     string
	Mode         string
	Model        string
	Status       services.RunStatus
	ErrorMessage string
	LLMCalls     int
	Score        int
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Duration is the run's wall time, up to now for unfinished runs.
func (r Run) Duration() time.Duration {
	end := time.Now()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(r.StartedAt)
}

// LayerRun is one layer executed within a run.
type LayerRun struct {
	ID           int64
	RunID        string
	Layer        string
	Status       services.RunStatus
	Targets      int
	LLMCalls     int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Generation is the decision recorded for one target.
type Generation struct {
	ID           int64
	RunID        string
	Layer        string
	Target       string
	Decision     string
	Reason       string
	Score        int
	LLMCalls     int
	Model        string
	ErrorMessage string
	CreatedAt    time.Time
}

// Usage is the per-model token accounting of a run.
type Usage struct {
	Model        string
	Requests     int
	Failures     int
	InputTokens  int
	OutputTokens int
}
