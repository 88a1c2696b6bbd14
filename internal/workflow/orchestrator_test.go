package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"layerforge/internal/artifact"
	"layerforge/internal/autofix"
	"layerforge/internal/config"
	"layerforge/internal/layer"
	"layerforge/internal/ledger"
	"layerforge/internal/services"
	"layerforge/internal/services/llm"
	"layerforge/internal/testsupport"
)

var filler = strings.Repeat("Detailed content line for the generated document.\n", 4)

// pipelineLLM answers by the layer found in the request context.
type pipelineLLM struct {
	mu     sync.Mutex
	calls  map[string]int
	total  int
	fail   map[string]error
	search string
}

func newPipelineLLM() *pipelineLLM {
	return &pipelineLLM{calls: map[string]int{}, fail: map[string]error{}}
}

func (p *pipelineLLM) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	l, _ := services.LayerFromContext(ctx)
	p.mu.Lock()
	p.calls[l]++
	p.total++
	err := p.fail[l]
	p.mu.Unlock()
	if err != nil {
		return llm.Completion{}, err
	}
	var text string
	switch layer.Layer(l) {
	case layer.RequestGen:
		text = "# Request\n" + filler
	case layer.RequirementGen:
		text = "# Definition\n" + filler
	case layer.InfoStructureGen:
		text = "# File structure for the todo application, one path per line\n" +
			"# Every listed file is generated by the following layers\n" +
			"src/app.py\nsrc/util.py\n"
	case layer.FileRequirement:
		text = "# File requirement\n" + filler
	case layer.CodeGen:
		text = "```python\n" + strings.Repeat("print('todo application output line')\n", 4) + "```"
	case layer.CodebaseGen:
		text = "# Directory summary\n" + filler
	default:
		text = p.search
	}
	return llm.Completion{Text: text, Model: req.Model}, nil
}

func (p *pipelineLLM) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *pipelineLLM) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
	clear(p.calls)
}

func newOrchestrator(t *testing.T, cfg *config.Config, completer *pipelineLLM, opts ...Option) *Orchestrator {
	t.Helper()
	orch, err := New(cfg, completer, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(orch.Close)
	return orch
}

func todoRequest() Request {
	return Request{
		Input:  "Build a small todo application in python",
		Prompt: "Keep it simple",
		Name:   "todo",
	}
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	fake := newPipelineLLM()
	orch := newOrchestrator(t, cfg, fake, WithLedger(store))

	summary, err := orch.Run(context.Background(), todoRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != services.RunStatusCompleted {
		t.Fatalf("status = %s", summary.Status)
	}
	if len(summary.Layers) != len(layer.All()) {
		t.Fatalf("layers = %d", len(summary.Layers))
	}
	// three documents, two requirements, two programs, one merged summary
	if fake.count() != 8 || summary.Calls != 8 {
		t.Fatalf("calls: llm=%d summary=%d", fake.count(), summary.Calls)
	}

	names := NewNames(cfg.Layout(), "todo")
	for _, p := range []string{
		names.Input(),
		names.Request(),
		names.Definition(),
		names.Manifest(),
		names.Requirement("src/app.py"),
		names.Code("src/app.py"),
		names.Code("src/util.py"),
		names.InfoStructure("src/app.py"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
	code := testsupport.ReadFile(t, names.Code("src/app.py"))
	if strings.Contains(code, "```") {
		t.Fatalf("code fence kept: %q", code)
	}
	requirementHash, _, err := artifact.HashFile(names.Requirement("src/app.py"))
	if err != nil {
		t.Fatal(err)
	}
	if sha, ok := artifact.ReadHashTrailer(code); !ok || sha != requirementHash {
		t.Fatalf("code trailer %q does not bind the requirement hash %q", sha, requirementHash)
	}
	if _, err := os.Stat(filepath.Join(names.Project(), "src", "info_structure_merged.md")); err != nil {
		t.Fatalf("merged source missing: %v", err)
	}

	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != services.RunStatusCompleted || run.LLMCalls != 8 || run.Name != "todo" {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
	gens, err := store.Generations(context.Background(), summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 8 {
		t.Fatalf("generations = %d", len(gens))
	}
	layers, err := store.LayerRuns(context.Background(), summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(layers) != len(layer.All()) {
		t.Fatalf("layer runs = %d", len(layers))
	}
}

func TestSecondRunMakesNoCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := newPipelineLLM()
	orch := newOrchestrator(t, cfg, fake)

	if _, err := orch.Run(context.Background(), todoRequest()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	fake.reset()

	summary, err := orch.Run(context.Background(), todoRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if fake.count() != 0 {
		t.Fatalf("second run made %d calls: %v", fake.count(), fake.calls)
	}
	skips := 0
	for _, tag := range summary.History {
		if strings.HasPrefix(tag, "skip(prompt unchanged)") {
			skips++
		}
	}
	if skips != 8 {
		t.Fatalf("skips = %d, history = %v", skips, summary.History)
	}
}

func TestResumeFromLaterLayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := newPipelineLLM()
	orch := newOrchestrator(t, cfg, fake)
	if _, err := orch.Run(context.Background(), todoRequest()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	fake.reset()

	summary, err := orch.Run(context.Background(), Request{
		Name:       "todo",
		StartLayer: layer.CodeGen,
		EndLayer:   layer.CodeGen,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(summary.Layers) != 1 || summary.Layers[0].Layer != layer.CodeGen {
		t.Fatalf("layers = %+v", summary.Layers)
	}
	if fake.count() != 0 {
		t.Fatalf("resume made %d calls", fake.count())
	}
}

func TestResumeWithoutEarlierOutputsFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	orch := newOrchestrator(t, cfg, newPipelineLLM())

	summary, err := orch.Run(context.Background(), Request{Name: "todo", StartLayer: layer.FileRequirement})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if summary.Status != services.RunStatusInvalid {
		t.Fatalf("status = %s", summary.Status)
	}
}

func TestLegacySingleShotStopsAfterOneLayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := newPipelineLLM()
	orch := newOrchestrator(t, cfg, fake)

	req := todoRequest()
	req.Mode = layer.ModeLegacySingleShot
	summary, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Layers) != 1 || fake.count() != 1 {
		t.Fatalf("layers=%d calls=%d", len(summary.Layers), fake.count())
	}
}

func TestSearchGrimoirePicksCompiler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := newPipelineLLM()
	fake.search = "```json\n{\"name\": \"codebase\"}\n```"
	orch := newOrchestrator(t, cfg, fake)

	req := todoRequest()
	req.Mode = layer.ModeSearchGrimoire
	req.EndLayer = layer.RequestGen
	summary, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.History) == 0 || summary.History[0] != "grimoire(search): codebase" {
		t.Fatalf("history = %v", summary.History)
	}
	if summary.Calls != 2 {
		t.Fatalf("calls = %d", summary.Calls)
	}
}

func TestLayerFailureFailsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	fake := newPipelineLLM()
	fake.fail[string(layer.RequirementGen)] = services.Wrap(services.ErrTransient, "router", "complete", "All routes failed", nil)
	orch := newOrchestrator(t, cfg, fake, WithLedger(store))

	summary, err := orch.Run(context.Background(), todoRequest())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if summary.Status != services.RunStatusFailed || len(summary.Layers) != 2 {
		t.Fatalf("status=%s layers=%d", summary.Status, len(summary.Layers))
	}
	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != services.RunStatusFailed || run.ErrorMessage == "" {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
}

func TestStaleRunningRunMarkedInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()
	if err := store.BeginRun(ctx, ledger.Run{ID: "crashed", Name: "todo", StartedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	orch := newOrchestrator(t, cfg, newPipelineLLM(), WithLedger(store))
	req := todoRequest()
	req.EndLayer = layer.RequestGen
	if _, err := orch.Run(ctx, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	run, err := store.GetRun(ctx, "crashed")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != services.RunStatusFailed || run.ErrorMessage != "interrupted" {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
}

func TestLedgerFailuresDoNotFailRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	orch := newOrchestrator(t, cfg, newPipelineLLM(), WithLedger(store))
	req := todoRequest()
	req.EndLayer = layer.RequestGen

	summary, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != services.RunStatusCompleted || len(summary.Layers) != 1 {
		t.Fatalf("status=%s layers=%d", summary.Status, len(summary.Layers))
	}
	if summary.Layers[0].Status != services.RunStatusCompleted {
		t.Fatalf("layer status=%s err=%s", summary.Layers[0].Status, summary.Layers[0].Err)
	}
}

func TestInvalidRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	orch := newOrchestrator(t, cfg, newPipelineLLM())

	cases := []Request{
		{},
		{Input: "x", StartLayer: layer.CodeGen, EndLayer: layer.RequestGen},
		{Input: "x", StartLayer: "9_unknown"},
		{StartLayer: layer.CodeGen},
	}
	for _, req := range cases {
		summary, err := orch.Run(context.Background(), req)
		if !errors.Is(err, services.ErrValidation) {
			t.Errorf("%+v: expected ErrValidation, got %v", req, err)
		}
		if summary.Status != services.RunStatusInvalid {
			t.Errorf("%+v: status = %s", req, summary.Status)
		}
	}
}

func TestLockedWorkDirRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	orch := newOrchestrator(t, cfg, newPipelineLLM())

	held := flock.New(cfg.Layout().LockPath)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if _, err := orch.Run(context.Background(), todoRequest()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

type passRunner struct{}

func (passRunner) Run(context.Context, string, string, string) (autofix.Execution, error) {
	return autofix.Execution{}, nil
}

func TestMaintenanceLayers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutofix())
	names := NewNames(cfg.Layout(), "todo")
	testsupport.WriteFile(t, names.Code("legacy.py"), "print('stale')\n")
	orch := newOrchestrator(t, cfg, newPipelineLLM(), WithRunner(passRunner{}))

	summary, err := orch.Run(context.Background(), todoRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	history := strings.Join(summary.History, "\n")
	for _, want := range []string{
		"passed: generated/todo/src/app.py",
		"passed: generated/todo/src/util.py",
		"removed(1 files): generated/todo",
	} {
		if !strings.Contains(history, want) {
			t.Errorf("history missing %q:\n%s", want, history)
		}
	}
	if _, err := os.Stat(names.Code("legacy.py")); !os.IsNotExist(err) {
		t.Fatalf("stray file not removed: %v", err)
	}
}

func TestHealthReportsEveryLayer(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutofix())
	cfg.Autofix.Interpreters = map[string]string{".zz": "layerforge-missing-interpreter"}
	orch := newOrchestrator(t, cfg, newPipelineLLM())

	health := orch.Health(context.Background())
	if len(health) != len(layer.All()) {
		t.Fatalf("health entries = %d", len(health))
	}
	for _, h := range health {
		if h.Name == string(layer.CodeFix) {
			if h.Ready || !strings.Contains(h.Detail, "layerforge-missing-interpreter") {
				t.Fatalf("unexpected code fix health: %+v", h)
			}
			continue
		}
		if !h.Ready {
			t.Fatalf("unexpected unhealthy layer: %+v", h)
		}
	}
}
