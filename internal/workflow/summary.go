package workflow

import (
	"time"

	"layerforge/internal/layer"
	"layerforge/internal/router"
	"layerforge/internal/services"
)

// LayerSummary reports one executed layer.
type LayerSummary struct {
	Layer    layer.Layer
	Status   services.RunStatus
	Targets  int
	Failed   int
	Calls    int
	Duration time.Duration
	Err      string
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Name     string
	Status   services.RunStatus
	Layers   []LayerSummary
	History  []string
	Usage    []router.ModelUsage
	Score    int
	Calls    int
	Duration time.Duration
}

// LastLayer returns the last layer that ran, if any.
func (s Summary) LastLayer() (layer.Layer, bool) {
	if len(s.Layers) == 0 {
		return "", false
	}
	return s.Layers[len(s.Layers)-1].Layer, true
}
