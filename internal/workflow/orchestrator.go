package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"layerforge/internal/autofix"
	"layerforge/internal/config"
	"layerforge/internal/converter"
	"layerforge/internal/fanout"
	"layerforge/internal/grimoire"
	"layerforge/internal/layer"
	"layerforge/internal/ledger"
	"layerforge/internal/logging"
	"layerforge/internal/router"
	"layerforge/internal/runctx"
	"layerforge/internal/services"
	"layerforge/internal/stage"
)

// Orchestrator walks the layers of a run and journals what each one did.
type Orchestrator struct {
	cfg         *config.Config
	layout      config.Layout
	llm         converter.Completer
	resolver    *grimoire.Resolver
	ownResolver bool
	ledger      *ledger.Store
	stats       *router.Stats
	handlers    map[layer.Layer]stage.Handler
	logger      *slog.Logger
}

// Option configures optional Orchestrator behavior.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	ledger      *ledger.Store
	stats       *router.Stats
	resolver    *grimoire.Resolver
	progress    fanout.ProgressFunc
	runner      autofix.Runner
	concurrency int
	handlers    map[layer.Layer]stage.Handler
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLedger journals runs into store.
func WithLedger(store *ledger.Store) Option {
	return func(o *options) { o.ledger = store }
}

// WithStats reports model usage from stats in the summary and ledger.
func WithStats(stats *router.Stats) Option {
	return func(o *options) { o.stats = stats }
}

// WithResolver shares a grimoire resolver. The caller keeps ownership.
func WithResolver(resolver *grimoire.Resolver) Option {
	return func(o *options) { o.resolver = resolver }
}

// WithProgress observes fan-out progress.
func WithProgress(fn fanout.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithRunner replaces the process runner used by the code-fix layer.
func WithRunner(runner autofix.Runner) Option {
	return func(o *options) { o.runner = runner }
}

// WithConcurrency overrides workflow.max_concurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithHandler replaces the handler registered for l.
func WithHandler(l layer.Layer, handler stage.Handler) Option {
	return func(o *options) {
		if o.handlers == nil {
			o.handlers = map[layer.Layer]stage.Handler{}
		}
		o.handlers[l] = handler
	}
}

// New builds an orchestrator sending completions to completer.
func New(cfg *config.Config, completer converter.Completer, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "build", "Missing configuration", nil)
	}
	if completer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "build", "Missing LLM router", nil)
	}
	o := &options{concurrency: cfg.Workflow.MaxConcurrency}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}

	orch := &Orchestrator{
		cfg:      cfg,
		layout:   cfg.Layout(),
		llm:      completer,
		resolver: o.resolver,
		ledger:   o.ledger,
		stats:    o.stats,
		logger:   logging.NewComponentLogger(o.logger, "workflow"),
	}
	if orch.resolver == nil {
		resolver, err := grimoire.NewResolver(cfg.Paths.GrimoireDir, o.logger)
		if err != nil {
			return nil, err
		}
		orch.resolver = resolver
		orch.ownResolver = true
	}

	conv := converter.New(completer, orch.layout,
		converter.WithSettings(converter.SettingsFromConfig(cfg.Generation)),
		converter.WithLogger(o.logger),
	)
	gen := &generation{
		conv:     conv,
		resolver: orch.resolver,
		layout:   orch.layout,
		limit:    max(1, o.concurrency),
		progress: o.progress,
	}
	fixOpts := []autofix.Option{autofix.WithLogger(o.logger)}
	if o.runner != nil {
		fixOpts = append(fixOpts, autofix.WithRunner(o.runner))
	}
	fixer := autofix.New(completer, autofix.SettingsFromConfig(cfg.Autofix, cfg.Generation), fixOpts...)

	orch.handlers = map[layer.Layer]stage.Handler{
		layer.RequestGen:       newSingleHandler(layer.RequestGen, gen, requestPaths),
		layer.RequirementGen:   newSingleHandler(layer.RequirementGen, gen, definitionPaths),
		layer.InfoStructureGen: newSingleHandler(layer.InfoStructureGen, gen, structurePaths),
		layer.FileRequirement:  newFanoutHandler(layer.FileRequirement, gen, false, requirementSets),
		layer.CodeGen:          newFanoutHandler(layer.CodeGen, gen, true, codeSets),
		layer.CodebaseGen:      newFanoutHandler(layer.CodebaseGen, gen, false, codebaseSets),
		layer.CodeFix:          &codeFixHandler{fixer: fixer, enabled: cfg.Autofix.Enabled, layout: orch.layout, logger: logging.NewNop()},
		layer.CleanUp:          &cleanUpHandler{enabled: cfg.Cleanup.Enabled, dryRun: cfg.Cleanup.DryRun, layout: orch.layout, logger: logging.NewNop()},
	}
	for l, h := range o.handlers {
		orch.handlers[l] = h
	}
	return orch, nil
}

// Close releases the resolver when the orchestrator created it.
func (o *Orchestrator) Close() {
	if o.ownResolver {
		o.resolver.Close()
	}
}

// Health reports readiness of every layer handler in layer order.
func (o *Orchestrator) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(o.handlers))
	for _, l := range layer.All() {
		h, ok := o.handlers[l]
		if !ok {
			out = append(out, stage.Unhealthy(string(l), "no handler registered"))
			continue
		}
		out = append(out, h.HealthCheck(ctx))
	}
	return out
}

// Run executes req. Layers run one after another from the start layer; the
// loop stops after the end layer, after one layer in legacy single-shot
// mode, or at the terminal layer. The summary is returned even when the run
// fails.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Summary, error) {
	req = req.withDefaults()
	summary := Summary{Status: services.RunStatusInvalid}
	if err := req.Validate(); err != nil {
		return summary, err
	}
	summary.Name = req.canonicalName()

	if err := o.cfg.EnsureDirectories(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "workflow", "prepare", "Cannot create work directories", err)
	}
	unlock, err := acquireLock(o.layout.LockPath)
	if err != nil {
		summary.Status = services.FailureStatus(err)
		return summary, err
	}
	defer func() {
		if err := unlock(); err != nil {
			o.logger.Warn("failed to release work directory lock", logging.Error(err))
		}
	}()

	if o.ledger != nil {
		// Holding the lock means no other run is live.
		if n, err := o.ledger.MarkInterrupted(ctx); err != nil {
			o.warnLedger(o.logger, err)
		} else if n > 0 {
			o.logger.Info("marked interrupted runs as failed", logging.Int("count", int(n)))
		}
	}

	rc, err := newRunContext(o.cfg, req)
	if err != nil {
		return summary, err
	}
	rc.RunID = uuid.NewString()
	summary.RunID = rc.RunID
	ctx = services.WithRunID(ctx, rc.RunID)
	logger := logging.WithContext(ctx, o.logger)

	if o.ledger != nil {
		if err := o.ledger.BeginRun(ctx, ledger.Run{
			ID:         rc.RunID,
			Name:       rc.Name,
			StartLayer: string(req.StartLayer),
			EndLayer:   string(req.EndLayer),
			Mode:       string(rc.Mode),
			Model:      rc.Models.Main,
			StartedAt:  rc.StartedAt,
		}); err != nil {
			o.warnLedger(logger, err)
		}
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("name", rc.Name),
		logging.String("start_layer", string(req.StartLayer)),
		logging.String("end_layer", string(req.EndLayer)),
		logging.String("mode", string(rc.Mode)),
		logging.String(logging.FieldModel, rc.Models.Main),
	)

	if rc.Mode == layer.ModeSearchGrimoire {
		if err := chooseCompiler(ctx, o.llm, o.resolver, rc, logger); err != nil {
			return o.finish(ctx, rc, summary, err)
		}
	}

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, rc, summary, err)
		}
		ls, err := o.runLayer(ctx, rc)
		summary.Layers = append(summary.Layers, ls)
		if err != nil {
			return o.finish(ctx, rc, summary, err)
		}
		if first {
			// The user compiler, like the raw prompt, shapes only the first layer.
			rc.Grimoires.Compiler = ""
		}
		if rc.Layer == req.EndLayer || rc.Mode.SingleShot() {
			break
		}
		if !rc.Advance() {
			break
		}
	}
	return o.finish(ctx, rc, summary, nil)
}

func (o *Orchestrator) runLayer(ctx context.Context, rc *runctx.RunContext) (LayerSummary, error) {
	ls := LayerSummary{Layer: rc.Layer, Status: services.RunStatusRunning}
	handler, ok := o.handlers[rc.Layer]
	if !ok {
		err := services.Wrap(services.ErrConfiguration, string(rc.Layer), "dispatch", "No handler registered", nil)
		ls.Status, ls.Err = services.FailureStatus(err), err.Error()
		return ls, err
	}

	layerCtx := services.WithLayer(ctx, string(rc.Layer))
	if secs := o.cfg.Workflow.LayerTimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		layerCtx, cancel = context.WithTimeout(layerCtx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	logger := logging.WithContext(layerCtx, o.logger)
	if aware, ok := handler.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}

	logger.Info("layer started",
		logging.String(logging.FieldEventType, "layer_start"),
		logging.String("mode", string(rc.Mode)),
		logging.String(logging.FieldModel, rc.Models.Main),
	)
	var layerID int64
	if o.ledger != nil {
		id, err := o.ledger.BeginLayer(ctx, rc.RunID, string(rc.Layer))
		if err != nil {
			o.warnLedger(logger, err)
		}
		layerID = id
	}

	started := time.Now()
	callsBefore := rc.Calls
	err := handler.Prepare(layerCtx, rc)
	var report stage.Report
	if err == nil {
		report, err = handler.Execute(layerCtx, rc)
	}
	if err != nil && errors.Is(layerCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = services.Wrap(services.ErrTimeout, string(rc.Layer), "execute", "Layer deadline exceeded", err)
	}

	ls.Targets = len(report.Targets)
	ls.Failed = report.Failed()
	ls.Calls = rc.Calls - callsBefore
	ls.Duration = time.Since(started)
	ls.Status = services.RunStatusCompleted
	if err != nil {
		ls.Status = services.FailureStatus(err)
		ls.Err = err.Error()
	}
	o.journalLayer(ctx, logger, rc, layerID, ls, report)

	if err != nil {
		logger.Error("layer failed",
			logging.String(logging.FieldEventType, "layer_failure"),
			logging.String("resolved_status", string(ls.Status)),
			logging.Error(err),
		)
		return ls, err
	}
	logger.Info("layer completed",
		logging.String(logging.FieldEventType, "layer_complete"),
		logging.Int("targets", ls.Targets),
		logging.Int("failed", ls.Failed),
		logging.Int("calls", ls.Calls),
		logging.Duration("duration", ls.Duration),
	)
	return ls, nil
}

// journalLayer writes the layer and its per-target decisions to the ledger.
// Ledger failures are logged; they never fail the run. A zero layerID means
// BeginLayer failed and there is no layer row to finish.
func (o *Orchestrator) journalLayer(ctx context.Context, logger *slog.Logger, rc *runctx.RunContext, layerID int64, ls LayerSummary, report stage.Report) {
	if o.ledger == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, t := range report.Targets {
		gen := ledger.Generation{
			RunID:    rc.RunID,
			Layer:    string(ls.Layer),
			Target:   t.Target,
			Decision: t.Decision,
			Reason:   t.Reason,
			Score:    t.Score,
			LLMCalls: t.Calls,
			Model:    t.Model,
		}
		if t.Err != nil {
			gen.ErrorMessage = t.Err.Error()
			if gen.Decision == "" {
				gen.Decision = string(converter.DecisionFailed)
			}
		}
		if err := o.ledger.RecordGeneration(ctx, gen); err != nil {
			o.warnLedger(logger, err)
		}
	}
	if layerID == 0 {
		return
	}
	if err := o.ledger.FinishLayer(ctx, layerID, ls.Status, ls.Targets, ls.Calls, ls.Err); err != nil {
		o.warnLedger(logger, err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, rc *runctx.RunContext, summary Summary, runErr error) (Summary, error) {
	logger := logging.WithContext(ctx, o.logger)
	summary.History = rc.History
	summary.Score = rc.Score
	summary.Calls = rc.Calls
	summary.Duration = time.Since(rc.StartedAt)
	if o.stats != nil {
		summary.Usage = o.stats.Snapshot()
	}
	summary.Status = services.RunStatusCompleted
	if runErr != nil {
		summary.Status = services.FailureStatus(runErr)
		rc.Fail(runErr)
	} else {
		rc.Succeeded = true
	}

	if o.ledger != nil {
		journalCtx := context.WithoutCancel(ctx)
		usage := make([]ledger.Usage, 0, len(summary.Usage))
		for _, u := range summary.Usage {
			usage = append(usage, ledger.Usage{
				Model:        u.Model,
				Requests:     u.Requests,
				Failures:     u.Failures,
				InputTokens:  u.InputTokens,
				OutputTokens: u.OutputTokens,
			})
		}
		if err := o.ledger.RecordUsage(journalCtx, rc.RunID, usage); err != nil {
			o.warnLedger(logger, err)
		}
		if err := o.ledger.FinishRun(journalCtx, rc.RunID, summary.Status, strings.TrimSpace(rc.Err), rc.Calls, rc.Score); err != nil {
			o.warnLedger(logger, err)
		}
	}

	if runErr != nil {
		logger.Error("run failed",
			logging.String(logging.FieldEventType, "run_failure"),
			logging.String("resolved_status", string(summary.Status)),
			logging.Int("calls", summary.Calls),
			logging.Error(runErr),
		)
		return summary, runErr
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("layers", len(summary.Layers)),
		logging.Int("calls", summary.Calls),
		logging.Int("score", summary.Score),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) warnLedger(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "ledger write failed", "ledger_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check work_dir permissions and free space"),
		logging.String(logging.FieldImpact, "run history incomplete"),
	)
}
