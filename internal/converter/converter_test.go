package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"layerforge/internal/artifact"
	"layerforge/internal/config"
	"layerforge/internal/layer"
	"layerforge/internal/runctx"
	"layerforge/internal/services/llm"
)

// scriptedLLM answers by recognising which prompt it received.
type scriptedLLM struct {
	mu        sync.Mutex
	calls     []llm.Request
	generated string
	score     string
	proposal  string
	applied   string
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	var text string
	switch {
	case strings.HasPrefix(req.Prompt, "You are reviewing"):
		text = s.score
	case strings.HasPrefix(req.Prompt, "Prepare a change proposal"):
		text = s.proposal
	case strings.HasPrefix(req.Prompt, "## Current target"):
		text = s.applied
	default:
		text = s.generated
	}
	return llm.Completion{Text: text, Model: req.Model}, nil
}

func (s *scriptedLLM) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedLLM) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

type fixture struct {
	layout config.Layout
	source string
	target string
	llm    *scriptedLLM
	conv   *Converter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	layout := config.NewLayout(t.TempDir())
	for _, dir := range layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	fake := &scriptedLLM{
		generated: strings.Repeat("generated definition line\n", 10),
		score:     "70",
		proposal:  "@@ -1,1 +1,1 @@\n-generated definition line\n+patched definition line",
		applied:   "patched definition line\n" + strings.Repeat("generated definition line\n", 9),
	}
	return &fixture{
		layout: layout,
		source: filepath.Join(layout.RequirementsDir, "request_demo.md"),
		target: filepath.Join(layout.RequirementsDir, "def_demo.md"),
		llm:    fake,
		conv:   New(fake, layout, opts...),
	}
}

func (f *fixture) writeSource(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.source, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) run(t *testing.T, rc *runctx.RunContext) Result {
	t.Helper()
	f.llm.reset()
	res, err := f.conv.Convert(context.Background(), rc, Job{Source: f.source, Target: f.target})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return res
}

func (f *fixture) readTarget(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.target)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newRunContext() *runctx.RunContext {
	rc := runctx.New("demo")
	rc.Layer = layer.RequirementGen
	rc.Mode = layer.ModeGrimoireOnly
	rc.Models = runctx.Models{Main: "main-model", Lite: "lite-model"}
	return rc
}

func longSource(changedLine int, changed string) string {
	var b strings.Builder
	for i := 1; i <= 60; i++ {
		if i == changedLine {
			b.WriteString(changed + "\n")
			continue
		}
		fmt.Fprintf(&b, "requirement line %02d: the service must handle case %02d correctly\n", i, i)
	}
	return b.String()
}

func TestFreshRunGeneratesOnceWithHashTrailer(t *testing.T) {
	f := newFixture(t)
	source := longSource(0, "")
	f.writeSource(t, source)

	rc := newRunContext()
	res := f.run(t, rc)
	if res.Decision != DecisionNew || res.Calls != 1 || f.llm.count() != 1 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
	content := f.readTarget(t)
	wantTrailer := artifact.HashPrefix + artifact.HashString(source) + "\n"
	if !strings.HasSuffix(content, wantTrailer) {
		t.Fatalf("target does not end with %q:\n%s", wantTrailer, content)
	}
	rec, ok, err := artifact.LoadRecord(f.layout.MetaDir, f.layout.Root, f.target)
	if err != nil || !ok || rec.SourceHash != artifact.HashString(source) {
		t.Fatalf("sidecar = %+v ok=%v err=%v", rec, ok, err)
	}
	past := artifact.Mirror(f.layout.Root, f.layout.PastSourceDir, f.target)
	if _, err := os.Stat(past); err != nil {
		t.Fatalf("source not archived: %v", err)
	}
	if len(rc.History) != 1 || !strings.HasPrefix(rc.History[0], "new(target missing)") {
		t.Fatalf("history = %v", rc.History)
	}
	if rc.Calls != 1 {
		t.Fatalf("rc.Calls = %d", rc.Calls)
	}
}

func TestUnchangedRunMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, longSource(0, ""))
	first := f.run(t, newRunContext())

	second := f.run(t, newRunContext())
	if f.llm.count() != 0 {
		t.Fatalf("expected no calls, got %d", f.llm.count())
	}
	if second.Decision != DecisionSkip || second.Reason != "prompt unchanged" {
		t.Fatalf("result = %+v", second)
	}
	if second.Target != first.Target {
		t.Fatalf("target = %s, want %s", second.Target, first.Target)
	}
}

func TestSmallEditTakesPatchPath(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())
	before := f.readTarget(t)

	edited := longSource(30, "requirement line 30: the service must reject case 30 loudly")
	f.writeSource(t, edited)
	res := f.run(t, newRunContext())

	if res.Decision != DecisionPatch || res.Calls != 3 || f.llm.count() != 3 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
	wantModels := []string{"lite-model", "lite-model", "main-model"}
	for i, want := range wantModels {
		if got := f.llm.calls[i].Model; got != want {
			t.Fatalf("call %d model = %s, want %s", i, got, want)
		}
	}
	after := f.readTarget(t)
	if after == before {
		t.Fatal("target was not patched")
	}
	if !strings.HasPrefix(after, "patched definition line\n") {
		t.Fatalf("unexpected target:\n%s", after)
	}
	if sha, _ := artifact.ReadHashTrailer(after); sha != artifact.HashString(edited) {
		t.Fatalf("trailer = %s, want hash of edited source", sha)
	}
	if res.Score != 70 {
		t.Fatalf("score = %d", res.Score)
	}
}

func TestWholesaleRewriteRegeneratesOnce(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())

	f.writeSource(t, strings.Repeat("an entirely different specification sentence\n", 50))
	res := f.run(t, newRunContext())
	if res.Decision != DecisionRegenerate || res.Reason != "diff too large" || f.llm.count() != 1 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
	if strings.HasPrefix(f.llm.calls[0].Prompt, "You are reviewing") {
		t.Fatal("match rate must not be requested for large diffs")
	}
}

func TestMatchRateThresholds(t *testing.T) {
	tests := []struct {
		score    string
		decision Decision
		calls    int
	}{
		{score: "95", decision: DecisionSkip, calls: 1},
		{score: "90", decision: DecisionSkip, calls: 1},
		{score: "49", decision: DecisionRegenerate, calls: 2},
		{score: "not a number", decision: DecisionRegenerate, calls: 2},
		{score: "50", decision: DecisionPatch, calls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			f := newFixture(t)
			f.llm.score = tt.score
			f.writeSource(t, longSource(0, ""))
			f.run(t, newRunContext())

			f.writeSource(t, longSource(12, "requirement line 12: a small clarification"))
			res := f.run(t, newRunContext())
			if res.Decision != tt.decision || f.llm.count() != tt.calls {
				t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
			}
		})
	}
}

func TestMatchRateSkipRebindsSourceHash(t *testing.T) {
	f := newFixture(t)
	f.llm.score = "97"
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())

	edited := longSource(5, "requirement line 05: a tiny wording change")
	f.writeSource(t, edited)
	f.run(t, newRunContext())

	hash, ok := artifact.RecordedSourceHash(f.layout.MetaDir, f.layout.Root, f.target)
	if !ok || hash != artifact.HashString(edited) {
		t.Fatalf("recorded hash = %s", hash)
	}
	res := f.run(t, newRunContext())
	if res.Decision != DecisionSkip || f.llm.count() != 0 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
}

func TestWhitespaceOnlyEditSkips(t *testing.T) {
	f := newFixture(t)
	source := longSource(0, "")
	f.writeSource(t, source)
	f.run(t, newRunContext())

	f.writeSource(t, "\n\n"+strings.ReplaceAll(source, ": ", ":   "))
	res := f.run(t, newRunContext())
	if res.Decision != DecisionSkip || res.Reason != "source unchanged" || f.llm.count() != 0 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}

	// The skip rebinds the recorded hash to the reformatted source.
	res = f.run(t, newRunContext())
	if res.Decision != DecisionSkip || res.Reason != "prompt unchanged" || f.llm.count() != 0 {
		t.Fatalf("after rebind: result = %+v, calls = %d", res, f.llm.count())
	}
}

func TestPromptChangeWithoutSourceDiffRegenerates(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())

	rc := newRunContext()
	rc.Intent = "Prefer small composable services."
	res := f.run(t, rc)
	if res.Decision != DecisionRegenerate || res.Reason != "prompt changed" || f.llm.count() != 1 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
}

func TestHashMismatchPreventsPromptSkip(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())

	if err := os.Remove(artifact.RecordPath(f.layout.MetaDir, f.layout.Root, f.target)); err != nil {
		t.Fatal(err)
	}
	tampered := artifact.AppendHashTrailer(f.readTarget(t), artifact.HashString("something else"))
	if err := os.WriteFile(f.target, []byte(tampered), 0o644); err != nil {
		t.Fatal(err)
	}
	res := f.run(t, newRunContext())
	if res.Reason == "prompt unchanged" {
		t.Fatalf("stale hash must not take the prompt-unchanged skip: %+v", res)
	}
}

func TestOversizedPatchPromptRegenerates(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxPatchPromptChars = 200
	f := newFixture(t, WithSettings(settings))
	f.writeSource(t, longSource(0, ""))
	f.run(t, newRunContext())

	f.writeSource(t, longSource(40, "requirement line 40: adjusted"))
	res := f.run(t, newRunContext())
	if res.Decision != DecisionRegenerate || res.Reason != "patch prompt too large" || f.llm.count() != 2 {
		t.Fatalf("result = %+v, calls = %d", res, f.llm.count())
	}
}

func TestEmptyResponseLeavesTargetUntouched(t *testing.T) {
	f := newFixture(t)
	f.llm.generated = ""
	f.writeSource(t, longSource(0, ""))

	rc := newRunContext()
	res := f.run(t, rc)
	if res.Decision != DecisionFailed {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(f.target); !os.IsNotExist(err) {
		t.Fatalf("target should not exist, stat err = %v", err)
	}
	if _, ok, _ := f.conv.Store().Load(rc.Layer, f.target, runctx.StageFinal); ok {
		t.Fatal("final prompt must not be persisted for a failed generation")
	}
	if len(rc.History) != 1 || !strings.HasPrefix(rc.History[0], "error(empty response)") {
		t.Fatalf("history = %v", rc.History)
	}
}

func TestCodeJobStripsFence(t *testing.T) {
	f := newFixture(t)
	f.llm.generated = "```python\n" + strings.Repeat("print('hello world')\n", 8) + "```"
	f.writeSource(t, longSource(0, ""))
	target := filepath.Join(f.layout.GeneratedDir, "demo", "main.py")
	if _, err := f.conv.Convert(context.Background(), newRunContext(), Job{Source: f.source, Target: target, Code: true}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "```") {
		t.Fatalf("fence kept:\n%s", data)
	}
}

func TestMissingSourceFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.conv.Convert(context.Background(), newRunContext(), Job{Source: f.source, Target: f.target}); err == nil {
		t.Fatal("expected error for missing source")
	}
	if f.llm.count() != 0 {
		t.Fatal("no call expected")
	}
}

func TestParseScore(t *testing.T) {
	tests := map[string]int{
		"85":     85,
		" 100\n": 100,
		"120":    100,
		"-4":     0,
		"85%":    0,
		"":       0,
		"high":   0,
	}
	for input, want := range tests {
		if got := ParseScore(input); got != want {
			t.Errorf("ParseScore(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	release := k.lock("a")

	acquired := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		r := k.lock("a")
		close(acquired)
		r()
		close(finished)
	}()

	otherDone := make(chan struct{})
	go func() {
		k.lock("b")()
		close(otherDone)
	}()
	<-otherDone

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	default:
	}
	release()
	<-acquired
	<-finished

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Fatalf("entries leaked: %d", len(k.locks))
	}
}

func TestSharedSourceTargetsEachTakePatchPath(t *testing.T) {
	f := newFixture(t)
	siblings := []string{
		f.target,
		filepath.Join(f.layout.RequirementsDir, "def_demo_api.md"),
	}
	convertAll := func(concurrent bool) []Result {
		results := make([]Result, len(siblings))
		errs := make([]error, len(siblings))
		var wg sync.WaitGroup
		for i, target := range siblings {
			job := Job{Source: f.source, Target: target}
			if !concurrent {
				results[i], errs[i] = f.conv.Convert(context.Background(), newRunContext(), job)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = f.conv.Convert(context.Background(), newRunContext(), job)
			}()
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Fatalf("Convert %s: %v", siblings[i], err)
			}
		}
		return results
	}

	f.writeSource(t, longSource(0, ""))
	for i, res := range convertAll(false) {
		if res.Decision != DecisionNew {
			t.Fatalf("first run %s: %+v", siblings[i], res)
		}
	}

	f.writeSource(t, longSource(30, "requirement line 30: the service must reject case 30 loudly"))
	for i, res := range convertAll(false) {
		if res.Decision != DecisionPatch || res.Calls != 3 {
			t.Fatalf("sequential %s: decision=%s reason=%q calls=%d", siblings[i], res.Decision, res.Reason, res.Calls)
		}
	}

	f.writeSource(t, longSource(30, "requirement line 30: the service must log case 30 and reject it"))
	for i, res := range convertAll(true) {
		if res.Decision != DecisionPatch || res.Calls != 3 {
			t.Fatalf("concurrent %s: decision=%s reason=%q calls=%d", siblings[i], res.Decision, res.Reason, res.Calls)
		}
	}
}
