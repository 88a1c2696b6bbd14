package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"layerforge/internal/config"
	"layerforge/internal/fileutil"
	"layerforge/internal/logging"
	"layerforge/internal/services"
	"layerforge/internal/services/anthropic"
	"layerforge/internal/services/llm"
	"layerforge/internal/textutil"
)

// Provider completes a single prompt.
type Provider interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Completer is what callers of the router depend on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// RouteSpec binds a configured route to its provider.
type RouteSpec struct {
	config.Route
	Client Provider
}

type route struct {
	spec    RouteSpec
	limiter *limiter
	breaker *Breaker
}

// Router sends completions to a main route and falls back across every other
// configured route on failure.
type Router struct {
	routes      []*route
	primary     string
	liteModel   string
	timeout     time.Duration
	oversizeDir string
	estimate    func(string) int
	cache       *responseCache
	stats       *Stats
	logger      *slog.Logger
}

// Option customizes the router.
type Option func(*Router)

// WithStats injects the usage collector shared with the caller.
func WithStats(stats *Stats) Option {
	return func(r *Router) {
		if stats != nil {
			r.stats = stats
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logging.NewComponentLogger(logger, "router")
	}
}

// WithEstimator overrides the token estimator.
func WithEstimator(estimate func(string) int) Option {
	return func(r *Router) {
		if estimate != nil {
			r.estimate = estimate
		}
	}
}

// WithOversizedDir sets where prompts exceeding their token budget are saved.
func WithOversizedDir(dir string) Option {
	return func(r *Router) {
		r.oversizeDir = dir
	}
}

// WithTimeout sets the per-call deadline. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		r.timeout = timeout
	}
}

// WithLiteModel sets the model used for the single invalid-response retry.
func WithLiteModel(model string) Option {
	return func(r *Router) {
		r.liteModel = strings.TrimSpace(model)
	}
}

// WithResponseCache enables memoisation of temperature-0 responses.
func WithResponseCache(maxCostBytes int64) Option {
	return func(r *Router) {
		if cache, err := newResponseCache(maxCostBytes); err == nil {
			r.cache = cache
		}
	}
}

// WithBreaker configures the per-route circuit breakers.
func WithBreaker(maxFailures int, cooldown time.Duration) Option {
	return func(r *Router) {
		for _, rt := range r.routes {
			rt.breaker = NewBreaker(maxFailures, cooldown)
		}
	}
}

// New builds a router over explicit routes. The first route is the primary.
func New(specs []RouteSpec, opts ...Option) (*Router, error) {
	if len(specs) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "router", "build", "No LLM routes configured", nil)
	}
	r := &Router{
		estimate: textutil.EstimateFast,
		stats:    NewStats(),
		logger:   logging.NewComponentLogger(nil, "router"),
	}
	seen := map[string]struct{}{}
	for _, spec := range specs {
		if spec.Client == nil {
			return nil, services.Wrap(services.ErrConfiguration, "router", "build", "Route "+spec.Name+" has no client", nil)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "router", "build", "Duplicate route "+spec.Name, nil)
		}
		seen[spec.Name] = struct{}{}
		r.routes = append(r.routes, &route{
			spec:    spec,
			limiter: newLimiter(spec.RPM, spec.TPM),
			breaker: NewBreaker(0, 0),
		})
	}
	r.primary = r.routes[0].spec.Name
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FromConfig builds provider clients for every configured route that has an
// API key. The route serving llm.model is moved to the front.
func FromConfig(cfg *config.Config, stats *Stats, logger *slog.Logger) (*Router, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "router", "build", "Missing configuration", nil)
	}
	log := logging.NewComponentLogger(logger, "router")
	var specs []RouteSpec
	for _, rt := range cfg.LLM.Routes {
		if strings.TrimSpace(rt.APIKey) == "" {
			logging.WarnWithContext(log, "route skipped", "route_skipped",
				logging.String(logging.FieldRoute, rt.Name),
				logging.String(logging.FieldErrorHint, "set api_key or the provider's API key environment variable"),
				logging.String(logging.FieldImpact, "route unavailable for fallback"),
			)
			continue
		}
		client, err := newProvider(rt, cfg.LLM)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "router", "build", "Route "+rt.Name, err)
		}
		specs = append(specs, RouteSpec{Route: rt, Client: client})
	}
	specs = promote(specs, cfg.LLM.Model)

	opts := []Option{
		WithStats(stats),
		WithLogger(logger),
		WithEstimator(textutil.CountTokens),
		WithOversizedDir(filepath.Join(cfg.Layout().PromptDir, "oversized")),
		WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second),
		WithLiteModel(cfg.LLM.LiteModel),
		WithResponseCache(int64(cfg.LLM.ResponseCacheMB) << 20),
		WithBreaker(cfg.LLM.BreakerFailures, time.Duration(cfg.LLM.BreakerCooldownSeconds)*time.Second),
	}
	return New(specs, opts...)
}

func newProvider(rt config.Route, llmCfg config.LLM) (Provider, error) {
	switch rt.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(rt.APIKey, rt.BaseURL, rt.Model)
	default:
		return llm.NewClient(llm.Config{
			APIKey:         rt.APIKey,
			BaseURL:        rt.BaseURL,
			Model:          rt.Model,
			Referer:        "https://github.com/layerforge/layerforge",
			Title:          "layerforge",
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		}, llm.WithRetryMaxAttempts(llmCfg.RetryAttempts)), nil
	}
}

// promote moves the route serving model to the front: an exact name or id
// match first, otherwise the first route of the inferred provider.
func promote(specs []RouteSpec, model string) []RouteSpec {
	idx := -1
	for i, spec := range specs {
		if spec.Name == model || spec.Model == model {
			idx = i
			break
		}
	}
	if idx < 0 {
		provider := InferProvider(model)
		for i, spec := range specs {
			if provider != "" && spec.Provider == provider {
				idx = i
				break
			}
		}
	}
	if idx <= 0 {
		return specs
	}
	out := make([]RouteSpec, 0, len(specs))
	out = append(out, specs[idx])
	out = append(out, specs[:idx]...)
	return append(out, specs[idx+1:]...)
}

// Close releases the response cache.
func (r *Router) Close() {
	if r != nil {
		r.cache.close()
	}
}

// Stats returns the usage collector.
func (r *Router) Stats() *Stats {
	return r.stats
}

// Routes lists route names in declaration order.
func (r *Router) Routes() []string {
	names := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		names = append(names, rt.spec.Name)
	}
	return names
}

// Fallbacks returns the routes tried after name fails: the primary first,
// then every other route in declaration order, never name itself.
func (r *Router) Fallbacks(name string) []string {
	var out []string
	if name != r.primary {
		out = append(out, r.primary)
	}
	for _, rt := range r.routes {
		if rt.spec.Name == name || rt.spec.Name == r.primary {
			continue
		}
		out = append(out, rt.spec.Name)
	}
	return out
}

// InferProvider guesses the provider serving a model id.
func InferProvider(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "/"):
		return "openrouter"
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	case strings.HasPrefix(m, "llama"), strings.HasPrefix(m, "mixtral"), strings.HasPrefix(m, "gemma"):
		return "groq"
	default:
		return ""
	}
}

type attempt struct {
	route *route
	model string
}

// plan returns the routes to try for model. A route matching the model by
// name or id leads; otherwise the first route of the inferred provider serves
// the requested model. The rest follow the fallback mesh with their own models.
func (r *Router) plan(model string) []attempt {
	model = strings.TrimSpace(model)
	var main *route
	mainModel := model
	for _, rt := range r.routes {
		if rt.spec.Name == model || rt.spec.Model == model {
			main = rt
			mainModel = rt.spec.Model
			break
		}
	}
	if main == nil {
		if provider := InferProvider(model); provider != "" {
			for _, rt := range r.routes {
				if rt.spec.Provider == provider {
					main = rt
					break
				}
			}
		}
	}
	if main == nil {
		main = r.routes[0]
		if model == "" {
			mainModel = main.spec.Model
		}
	}
	if mainModel == "" {
		mainModel = main.spec.Model
	}

	out := []attempt{{route: main, model: mainModel}}
	for _, name := range r.Fallbacks(main.spec.Name) {
		rt := r.byName(name)
		out = append(out, attempt{route: rt, model: rt.spec.Model})
	}
	return out
}

func (r *Router) byName(name string) *route {
	for _, rt := range r.routes {
		if rt.spec.Name == name {
			return rt
		}
	}
	return nil
}

// Complete returns the completion for req. An empty prompt returns an empty
// completion without a call. An empty response is retried once on the lite
// model; if the retry also yields nothing usable, an empty completion is
// returned without error. Provider failures fall through the mesh; when every
// route fails the error wraps ErrTransient. Each call carries a request id
// unless ctx already has one.
func (r *Router) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return llm.Completion{}, nil
	}
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, r.logger)
	r.checkBudget(logger, req)

	if cached, ok := r.cache.get(req); ok {
		logger.Debug("response cache hit", logging.String(logging.FieldModel, req.Model))
		return cached, nil
	}

	completion, err := r.completeVia(ctx, logger, r.plan(req.Model), req)
	if err == nil {
		r.cache.set(req, completion)
		return completion, nil
	}
	if !errors.Is(err, llm.ErrEmptyContent) {
		return llm.Completion{}, err
	}

	logging.WarnWithContext(logger, "invalid response, retrying on lite model", "llm_invalid_response",
		logging.String(logging.FieldModel, req.Model),
		logging.String("retry_model", r.liteModel),
		logging.Error(err),
	)
	retry := req
	if r.liteModel != "" {
		retry.Model = r.liteModel
	}
	completion, err = r.completeVia(ctx, logger, r.plan(retry.Model)[:1], retry)
	if err == nil {
		return completion, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return llm.Completion{}, ctxErr
	}
	logging.WarnWithContext(logger, "invalid response after retry, returning empty text", "llm_invalid_response",
		logging.String(logging.FieldModel, retry.Model),
		logging.String(logging.FieldImpact, "target left for the caller to handle"),
		logging.Error(err),
	)
	return llm.Completion{Model: retry.Model}, nil
}

// completeVia walks attempts until one succeeds. An empty response stops the
// walk and is returned as ErrEmptyContent.
func (r *Router) completeVia(ctx context.Context, logger *slog.Logger, attempts []attempt, req llm.Request) (llm.Completion, error) {
	var lastErr error
	estimate := r.estimate(req.Prompt)
	for i, at := range attempts {
		if err := ctx.Err(); err != nil {
			return llm.Completion{}, err
		}
		call := req
		call.Model = at.model

		var completion llm.Completion
		var empty error
		err := at.route.breaker.Execute(func() error {
			if err := at.route.limiter.wait(ctx, estimate+call.MaxTokens); err != nil {
				return err
			}
			callCtx, cancel := r.callContext(ctx)
			defer cancel()
			c, err := at.route.spec.Client.Complete(callCtx, call)
			if errors.Is(err, llm.ErrEmptyContent) {
				empty = err
				return nil
			}
			if err != nil {
				return err
			}
			completion = c
			return nil
		})

		switch {
		case err == nil && empty != nil:
			r.stats.RecordFailure(call.Model)
			return llm.Completion{}, empty
		case err == nil:
			if completion.Model == "" {
				completion.Model = call.Model
			}
			in, out := completion.InputTokens, completion.OutputTokens
			if in == 0 && out == 0 {
				in, out = estimate, r.estimate(completion.Text)
			}
			r.stats.Record(completion.Model, in, out)
			if i > 0 {
				logger.Info("fallback route succeeded",
					logging.String(logging.FieldRoute, at.route.spec.Name),
					logging.String(logging.FieldModel, call.Model),
				)
			}
			return completion, nil
		}

		if ctx.Err() != nil {
			return llm.Completion{}, ctx.Err()
		}
		if !errors.Is(err, ErrCircuitOpen) {
			r.stats.RecordFailure(call.Model)
		}
		lastErr = err
		logging.WarnWithContext(logger, "route failed, falling back", "llm_fallback",
			logging.String(logging.FieldRoute, at.route.spec.Name),
			logging.String(logging.FieldModel, call.Model),
			logging.String("breaker", at.route.breaker.State()),
			logging.String(logging.FieldImpact, "next route in the fallback mesh is tried"),
			logging.Error(err),
		)
	}
	if lastErr == nil {
		lastErr = errors.New("no route attempted")
	}
	return llm.Completion{}, services.Wrap(services.ErrTransient, "router", "complete",
		fmt.Sprintf("All %d routes failed", len(attempts)), lastErr)
}

func (r *Router) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// checkBudget warns when the prompt alone exceeds the completion budget and
// saves it for inspection. It never blocks the call.
func (r *Router) checkBudget(logger *slog.Logger, req llm.Request) {
	if req.MaxTokens <= 0 {
		return
	}
	tokens := r.estimate(req.Prompt)
	if tokens <= req.MaxTokens {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldModel, req.Model),
		logging.Int("prompt_tokens", tokens),
		logging.Int("max_tokens", req.MaxTokens),
		logging.String(logging.FieldErrorHint, "raise max_tokens or shorten the source"),
		logging.String(logging.FieldImpact, "the response may be truncated"),
	}
	if r.oversizeDir != "" {
		name := fmt.Sprintf("%s_%s.prompt", time.Now().UTC().Format("20060102T150405.000000000"), textutil.SanitizeToken(req.Model))
		path := filepath.Join(r.oversizeDir, name)
		if err := fileutil.WriteFileAtomic(path, []byte(req.Prompt), 0o644); err != nil {
			attrs = append(attrs, logging.Error(err))
		} else {
			attrs = append(attrs, logging.String("saved_to", path))
		}
	}
	logging.WarnWithContext(logger, "prompt exceeds token budget", "llm_oversized_prompt", attrs...)
}
