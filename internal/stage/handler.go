package stage

import (
	"context"
	"log/slog"

	"layerforge/internal/runctx"
)

// Handler describes the contract the orchestrator needs from each layer.
// Prepare validates inputs without side effects; Execute performs the layer
// on the borrowed run context and reports every target it touched.
type Handler interface {
	Prepare(context.Context, *runctx.RunContext) error
	Execute(context.Context, *runctx.RunContext) (Report, error)
	HealthCheck(context.Context) Health
}

// LoggerAware handlers receive the layer-scoped logger before Prepare.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// TargetReport is the decision taken for one target.
type TargetReport struct {
	Target   string
	Decision string
	Reason   string
	Score    int
	Calls    int
	Model    string
	Err      error
}

// Report summarizes one layer execution.
type Report struct {
	Targets []TargetReport
}

// Calls sums the completions made by the layer.
func (r Report) Calls() int {
	total := 0
	for _, t := range r.Targets {
		total += t.Calls
	}
	return total
}

// Failed counts targets that ended with an error.
func (r Report) Failed() int {
	n := 0
	for _, t := range r.Targets {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// Health reports whether a layer handler can run. Detail explains a not-ready layer.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
