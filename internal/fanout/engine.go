package fanout

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"layerforge/internal/converter"
	"layerforge/internal/logging"
	"layerforge/internal/runctx"
)

// Converter is the per-target decision engine driven by the fan-out.
type Converter interface {
	Convert(ctx context.Context, rc *runctx.RunContext, job converter.Job) (converter.Result, error)
}

// JobBuilder turns a merged set into a converter job.
type JobBuilder func(Set) converter.Job

// ProgressFunc observes completed tasks.
type ProgressFunc func(done, total int)

// Outcome is the result of one task.
type Outcome struct {
	Set    Set
	Result converter.Result
	Err    error
}

// Engine converts many sets concurrently with a bounded pool.
type Engine struct {
	conv     Converter
	root     string
	limit    int
	progress ProgressFunc
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLimit caps concurrent conversions. Values below 1 mean 1.
func WithLimit(limit int) Option {
	return func(e *Engine) {
		e.limit = max(1, limit)
	}
}

// WithProgress registers a progress callback. It may be called from several
// goroutines.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "fanout")
	}
}

// NewEngine builds an engine. root is the work directory used for labels.
func NewEngine(conv Converter, root string, opts ...Option) *Engine {
	e := &Engine{
		conv:   conv,
		root:   root,
		limit:  1,
		logger: logging.NewComponentLogger(nil, "fanout"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run merges sets sharing a target, converts each merged set on a snapshot of
// rc, and folds the task results back into rc once all tasks finish. Task
// failures are recorded in rc's history and returned in the outcomes; only
// merge failures and cancellation are returned as errors.
func (e *Engine) Run(ctx context.Context, rc *runctx.RunContext, sets []Set, build JobBuilder) ([]Outcome, error) {
	merged, err := Merge(e.root, sets)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, e.logger)
	total := len(merged)
	logger.Info("fan-out started",
		logging.Int("sets", len(sets)),
		logging.Int("targets", total),
		logging.Int("concurrency", e.limit),
	)

	outcomes := make([]Outcome, total)
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, set := range merged {
		snapshot := rc.Snapshot()
		g.Go(func() error {
			outcomes[i].Set = set
			if err := gctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			res, err := e.conv.Convert(gctx, snapshot, build(set))
			outcomes[i].Result = res
			outcomes[i].Err = err
			n := int(done.Add(1))
			logger.Debug("fan-out progress", logging.Int("done", n), logging.Int("total", total))
			if e.progress != nil {
				e.progress(n, total)
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]runctx.TaskResult, 0, total)
	failed := 0
	for _, o := range outcomes {
		tr := runctx.TaskResult{
			Target:   o.Set.Target,
			Decision: string(o.Result.Decision),
			Score:    o.Result.Score,
			Calls:    o.Result.Calls,
			Err:      o.Err,
		}
		if o.Err == nil && o.Result.Tag != "" {
			tr.History = []string{o.Result.Tag}
		}
		if o.Err != nil {
			failed++
		}
		results = append(results, tr)
	}
	rc.Absorb(results...)
	logger.Info("fan-out finished",
		logging.Int("targets", total),
		logging.Int("failed", failed),
	)
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
