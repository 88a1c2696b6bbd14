package converter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"layerforge/internal/artifact"
	"layerforge/internal/config"
	"layerforge/internal/logging"
	"layerforge/internal/prompt"
	"layerforge/internal/runctx"
	"layerforge/internal/services"
	"layerforge/internal/services/llm"
	"layerforge/internal/textdiff"
	"layerforge/internal/textutil"
)

// Decision names the branch taken for one target.
type Decision string

const (
	DecisionNew        Decision = "new"
	DecisionSkip       Decision = "skip"
	DecisionRegenerate Decision = "regenerate"
	DecisionPatch      Decision = "patch"
	DecisionFailed     Decision = "error"
)

// Completer is the router surface the converter needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Job is one generation unit: a source rendered into a target, optionally
// informed by a context file.
type Job struct {
	Source    string
	Target    string
	Context   string
	Compiler  string
	Formatter string
	// Code strips markdown fences from responses before writing.
	Code bool
}

// Result describes what Convert did for a target.
type Result struct {
	Target   string
	Decision Decision
	Reason   string
	Score    int
	Calls    int
	Model    string
	Tag      string
}

// Converter decides per target whether to skip, patch, or regenerate, and
// performs the completions that decision needs.
type Converter struct {
	llm      Completer
	layout   config.Layout
	store    *prompt.Store
	settings Settings
	locks    *keyedMutex
	logger   *slog.Logger
}

// Option customizes a Converter.
type Option func(*Converter)

// WithSettings overrides the decision thresholds.
func WithSettings(settings Settings) Option {
	return func(c *Converter) {
		c.settings = settings
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logging.NewComponentLogger(logger, "converter")
	}
}

// New builds a converter writing under layout.
func New(completer Completer, layout config.Layout, opts ...Option) *Converter {
	c := &Converter{
		llm:      completer,
		layout:   layout,
		store:    prompt.NewStore(layout),
		settings: DefaultSettings(),
		locks:    newKeyedMutex(),
		logger:   logging.NewComponentLogger(nil, "converter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the prompt store the converter persists into.
func (c *Converter) Store() *prompt.Store {
	return c.store
}

type unit struct {
	rc     *runctx.RunContext
	job    Job
	paths  *artifact.Paths
	rel    string
	source string
	final  string
	result Result
	logger *slog.Logger
}

// Convert brings job.Target up to date with job.Source. rc is borrowed: its
// prompts are replaced with this target's stages, the decision tag is
// appended to its history, and its call count and score are updated.
//
// Provider and filesystem failures are returned. An empty model response
// leaves the target untouched and is reported as DecisionFailed.
func (c *Converter) Convert(ctx context.Context, rc *runctx.RunContext, job Job) (Result, error) {
	if rc == nil {
		return Result{}, services.Wrap(services.ErrValidation, "converter", "convert", "Missing run context", nil)
	}
	if strings.TrimSpace(job.Source) == "" || strings.TrimSpace(job.Target) == "" {
		return Result{}, services.Wrap(services.ErrValidation, string(rc.Layer), "convert", "Source and target are required", nil)
	}
	target, err := filepath.Abs(job.Target)
	if err != nil {
		return Result{}, fmt.Errorf("resolve target: %w", err)
	}
	release := c.locks.lock(target)
	defer release()

	rel := artifact.Rel(c.layout.Root, target)
	ctx = services.WithTarget(ctx, rel)
	u := &unit{
		rc:     rc,
		job:    job,
		paths:  artifact.NewPaths(c.layout),
		rel:    rel,
		result: Result{Target: target},
		logger: logging.WithContext(ctx, c.logger),
	}

	res, err := c.convert(ctx, u)
	rc.Calls += res.Calls
	if res.Score > 0 {
		rc.Score = res.Score
	}
	if err != nil {
		return res, err
	}
	rc.Record(res.Tag)
	return res, nil
}

func (c *Converter) convert(ctx context.Context, u *unit) (Result, error) {
	if err := u.paths.Assign(u.job.Source, u.job.Target, u.job.Context); err != nil {
		return u.result, err
	}
	source, ok, err := artifact.ReadText(u.paths.Source.Path)
	if err != nil {
		return u.result, err
	}
	if !ok {
		return u.result, services.Wrap(services.ErrNotFound, string(u.rc.Layer), "read source",
			"Source "+artifact.Rel(c.layout.Root, u.paths.Source.Path)+" does not exist; run the previous layer first", nil)
	}
	u.source = artifact.StripHashTrailer(source)

	var contextText string
	if u.paths.Context.Exists {
		text, _, err := artifact.ReadText(u.paths.Context.Path)
		if err != nil {
			return u.result, err
		}
		contextText = artifact.StripHashTrailer(text)
	}

	in := prompt.Inputs{
		Mode:      u.rc.Mode,
		Compiler:  u.job.Compiler,
		Formatter: u.job.Formatter,
		Raw:       u.rc.Prompt(runctx.StageInput),
		Source:    u.source,
		Context:   contextText,
		Intent:    u.rc.Intent,
		Language:  u.rc.Language,
	}
	u.rc.ResetPrompts()
	u.final = prompt.Final(in)
	u.rc.SetPrompt(runctx.StageGoal, prompt.Goal(in))
	u.rc.SetPrompt(runctx.StageFinal, u.final)

	current, exists, err := artifact.ReadText(u.paths.Target.Path)
	if err != nil {
		return u.result, err
	}
	body := artifact.StripHashTrailer(current)
	if !exists {
		return c.generate(ctx, u, DecisionNew, "target missing")
	}
	if len(strings.TrimSpace(body)) < c.settings.MinContentBytes {
		return c.generate(ctx, u, DecisionNew, "target too small")
	}

	promptSame, err := c.store.Unchanged(u.rc.Layer, u.paths.Target.Path, runctx.StageFinal, u.final)
	if err != nil {
		return u.result, err
	}
	recorded, hasRecord := artifact.RecordedSourceHash(c.layout.MetaDir, c.layout.Root, u.paths.Target.Path)
	if promptSame && hasRecord && recorded == u.paths.Source.Hash {
		return c.finish(u, DecisionSkip, "prompt unchanged")
	}

	past, hasPast, err := artifact.ReadText(u.paths.Source.PastPath)
	if err != nil {
		return u.result, err
	}
	if !hasPast {
		return c.generate(ctx, u, DecisionRegenerate, "no past source")
	}
	diff := textdiff.Unified(artifact.StripHashTrailer(past), u.source)
	if diff == "" {
		if promptSame {
			return c.finish(u, DecisionSkip, "source unchanged")
		}
		return c.generate(ctx, u, DecisionRegenerate, "prompt changed")
	}
	if ratio := textdiff.Ratio(diff, u.source); ratio > c.settings.SourceDiffRatioThreshold {
		return c.generate(ctx, u, DecisionRegenerate, "diff too large")
	}

	score, err := c.matchRate(ctx, u, body)
	if err != nil {
		return u.result, err
	}
	u.result.Score = score
	reason := fmt.Sprintf("match rate %d", score)
	switch {
	case score >= c.settings.MatchRateOK:
		return c.finish(u, DecisionSkip, reason)
	case score < c.settings.MatchRateNG:
		return c.generate(ctx, u, DecisionRegenerate, reason)
	}
	return c.patch(ctx, u, body, diff, reason)
}

// generate performs a full generation from the final prompt.
func (c *Converter) generate(ctx context.Context, u *unit, decision Decision, reason string) (Result, error) {
	completion, err := c.complete(ctx, u, "generate", llm.Request{
		Model:       u.rc.Models.Main,
		Prompt:      u.final,
		MaxTokens:   c.settings.MaxTokens,
		Temperature: c.settings.Temperature,
	})
	if err != nil {
		return u.result, err
	}
	return c.write(u, completion.Text, decision, reason)
}

func (c *Converter) matchRate(ctx context.Context, u *unit, previous string) (int, error) {
	p := prompt.MatchRate(previous, u.source, u.final)
	u.rc.SetPrompt(runctx.StageMatchRate, p)
	completion, err := c.complete(ctx, u, "match rate", llm.Request{
		Model:     u.rc.Models.Lite,
		Prompt:    p,
		MaxTokens: c.settings.MaxTokensMatchRate,
	})
	if err != nil {
		return 0, err
	}
	return ParseScore(completion.Text), nil
}

// patch proposes a diff against the current target and asks for the merged
// result. Oversized prompts fall back to a full generation.
func (c *Converter) patch(ctx context.Context, u *unit, body, diff, reason string) (Result, error) {
	order := prompt.DiffOrder(u.source, diff)
	u.rc.SetPrompt(runctx.StageDiffOrder, order)
	if len(order) > c.settings.MaxPatchPromptChars {
		return c.generate(ctx, u, DecisionRegenerate, "patch prompt too large")
	}

	propose := prompt.ProposeDiff(body, order)
	u.rc.SetPrompt(runctx.StageDiff, propose)
	proposed, err := c.complete(ctx, u, "propose diff", llm.Request{
		Model:     u.rc.Models.Lite,
		Prompt:    propose,
		MaxTokens: c.settings.MaxTokensProposeDiff,
	})
	if err != nil {
		return u.result, err
	}
	proposal := textutil.StripCodeFence(proposed.Text)
	if strings.TrimSpace(proposal) == "" {
		return c.generate(ctx, u, DecisionRegenerate, "empty diff proposal")
	}

	apply := prompt.Apply(body, proposal)
	u.rc.SetPrompt(runctx.StageApply, apply)
	if len(apply) > c.settings.MaxPatchPromptChars {
		return c.generate(ctx, u, DecisionRegenerate, "patch prompt too large")
	}
	applied, err := c.complete(ctx, u, "apply diff", llm.Request{
		Model:       u.rc.Models.Main,
		Prompt:      apply,
		MaxTokens:   c.settings.MaxTokens,
		Temperature: c.settings.ApplyTemperature,
	})
	if err != nil {
		return u.result, err
	}
	return c.write(u, applied.Text, DecisionPatch, reason)
}

func (c *Converter) complete(ctx context.Context, u *unit, op string, req llm.Request) (llm.Completion, error) {
	u.result.Calls++
	completion, err := c.llm.Complete(ctx, req)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("%s for %s: %w", op, u.rel, err)
	}
	u.result.Model = completion.Model
	if u.result.Model == "" {
		u.result.Model = req.Model
	}
	return completion, nil
}

// write stores text as the new target bound to the live source hash.
func (c *Converter) write(u *unit, text string, decision Decision, reason string) (Result, error) {
	text = artifact.StripHashTrailer(text)
	if u.job.Code {
		text = textutil.StripCodeFence(text)
	}
	if strings.TrimSpace(text) == "" {
		u.result.Decision = DecisionFailed
		u.result.Reason = "empty response"
		u.result.Tag = fmt.Sprintf("%s(%s): %s", DecisionFailed, u.result.Reason, u.rel)
		logging.WarnWithContext(u.logger, "empty model response, target left unchanged", "converter_empty_response",
			logging.String("intended_decision", string(decision)),
			logging.String(logging.FieldModel, u.result.Model),
			logging.String(logging.FieldErrorHint, "rerun the layer or switch models"),
			logging.String(logging.FieldImpact, "target keeps its previous content"),
		)
		return u.result, nil
	}
	if err := artifact.WriteTarget(u.paths.Target.Path, text, u.paths.Source.Hash); err != nil {
		return u.result, err
	}
	return c.finish(u, decision, reason)
}

// finish persists prompts and the sidecar, archives past snapshots, and logs
// the decision.
func (c *Converter) finish(u *unit, decision Decision, reason string) (Result, error) {
	u.result.Decision = decision
	u.result.Reason = reason
	u.result.Tag = fmt.Sprintf("%s(%s): %s", decision, reason, u.rel)

	if err := c.store.SaveAll(u.rc, u.paths.Target.Path); err != nil {
		return u.result, err
	}
	if err := u.paths.Refresh(); err != nil {
		return u.result, err
	}
	rec := artifact.Record{
		Target:     u.paths.Target.Path,
		Layer:      string(u.rc.Layer),
		SourceHash: u.paths.Source.Hash,
		PromptHash: artifact.HashString(u.final),
		Decision:   string(decision),
		Model:      u.result.Model,
	}
	if err := artifact.WriteRecord(c.layout.MetaDir, c.layout.Root, rec); err != nil {
		return u.result, err
	}
	if err := u.paths.Archive(); err != nil {
		return u.result, err
	}

	attrs := logging.DecisionAttrs("regeneration", string(decision), reason)
	attrs = append(attrs,
		logging.Int("llm_calls", u.result.Calls),
		logging.Int("score", u.result.Score),
	)
	u.logger.Info("target decided", logging.Args(attrs...)...)
	return u.result, nil
}

// ParseScore reads a match-rate response. Anything but an integer scores 0,
// and values are clamped to 0..100.
func ParseScore(text string) int {
	score, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0
	}
	return max(0, min(100, score))
}
