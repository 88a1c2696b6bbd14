package runctx

import (
	"maps"
	"slices"
	"strings"
	"time"

	"layerforge/internal/layer"
)

// PromptStage names one slot in the per-target prompt record.
type PromptStage string

const (
	StageInput     PromptStage = "input"
	StageMatchRate PromptStage = "match_rate"
	StageDiffOrder PromptStage = "diff_order"
	StageDiff      PromptStage = "diff"
	StageApply     PromptStage = "apply"
	StageGoal      PromptStage = "goal"
	StageFinal     PromptStage = "final"
)

var stages = []PromptStage{
	StageInput,
	StageMatchRate,
	StageDiffOrder,
	StageDiff,
	StageApply,
	StageGoal,
	StageFinal,
}

// Stages returns every prompt stage in pipeline order.
func Stages() []PromptStage {
	return slices.Clone(stages)
}

// Suffix is appended to the target path when the stage prompt is persisted.
func (s PromptStage) Suffix() string {
	return "_" + string(s)
}

func (s PromptStage) String() string {
	return string(s)
}

// Grimoires holds the template names chosen for a run.
type Grimoires struct {
	Compiler  string
	Formatter string
	Architect string
}

// Models holds the model identifiers used for generation, cheap checks, and
// failure analysis.
type Models struct {
	Main  string
	Lite  string
	Smart string
}

// RunContext is the mutable state of one pipeline run. The orchestrator owns
// it; fan-out tasks receive snapshots and report back through TaskResult.
type RunContext struct {
	RunID     string
	Name      string
	Layer     layer.Layer
	Mode      layer.Mode
	Models    Models
	Grimoires Grimoires
	Language  string
	Intent    string
	Input     string

	Prompts map[PromptStage]string
	History []string

	Score     int
	Calls     int
	Succeeded bool
	Err       string
	StartedAt time.Time
}

// New returns a context for the canonical name starting at the first layer.
func New(name string) *RunContext {
	return &RunContext{
		Name:      strings.TrimSpace(name),
		Layer:     layer.First(),
		Mode:      layer.ModeGrimoireAndPrompt,
		Prompts:   make(map[PromptStage]string, len(stages)),
		StartedAt: time.Now(),
	}
}

// Prompt returns the text recorded for stage.
func (r *RunContext) Prompt(stage PromptStage) string {
	if r.Prompts == nil {
		return ""
	}
	return r.Prompts[stage]
}

// SetPrompt records text for stage.
func (r *RunContext) SetPrompt(stage PromptStage, text string) {
	if r.Prompts == nil {
		r.Prompts = make(map[PromptStage]string, len(stages))
	}
	r.Prompts[stage] = text
}

// ResetPrompts clears the per-target stages, keeping the raw input.
func (r *RunContext) ResetPrompts() {
	input := r.Prompt(StageInput)
	clear(r.Prompts)
	if input != "" {
		r.SetPrompt(StageInput, input)
	}
}

// Record appends a decision tag to the history trace.
func (r *RunContext) Record(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	r.History = append(r.History, tag)
}

// Advance moves to the next layer. The raw prompt is applied only to the
// first layer, so mode drops to grimoire-only on every transition.
func (r *RunContext) Advance() bool {
	next, ok := r.Layer.Next()
	if !ok {
		return false
	}
	r.Layer = next
	r.Mode = layer.ModeGrimoireOnly
	r.ResetPrompts()
	return true
}

// Fail records err as the run outcome.
func (r *RunContext) Fail(err error) {
	r.Succeeded = false
	if err != nil {
		r.Err = err.Error()
	}
}

// Snapshot returns an independent copy safe to hand to a concurrent task.
func (r *RunContext) Snapshot() *RunContext {
	cp := *r
	cp.Prompts = maps.Clone(r.Prompts)
	if cp.Prompts == nil {
		cp.Prompts = make(map[PromptStage]string, len(stages))
	}
	cp.History = slices.Clone(r.History)
	return &cp
}

// TaskResult is what a fan-out task reports back to its parent context.
type TaskResult struct {
	Target   string
	Decision string
	Score    int
	Calls    int
	History  []string
	Err      error
}

// Absorb merges task results into the context. The score becomes the mean of
// the scored results; errors are recorded in history, not raised.
func (r *RunContext) Absorb(results ...TaskResult) {
	total, scored := 0, 0
	for _, res := range results {
		r.History = append(r.History, res.History...)
		r.Calls += res.Calls
		if res.Score > 0 {
			total += res.Score
			scored++
		}
		if res.Err != nil {
			r.Record("error(" + res.Target + "): " + res.Err.Error())
		}
	}
	if scored > 0 {
		r.Score = total / scored
	}
}
