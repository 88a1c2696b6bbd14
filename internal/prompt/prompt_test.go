package prompt

import (
	"path/filepath"
	"strings"
	"testing"

	"layerforge/internal/config"
	"layerforge/internal/layer"
	"layerforge/internal/runctx"
)

func TestIsSameIgnoresWhitespace(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"hello world", "hello  world\n", true},
		{"a\tb\nc", "abc", true},
		{"abc", "abd", false},
		{"", "   \n", true},
	}
	for _, tc := range tests {
		if got := IsSame(tc.a, tc.b); got != tc.want {
			t.Errorf("IsSame(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStoreSaveLoad(t *testing.T) {
	root := t.TempDir()
	store := NewStore(config.NewLayout(root))
	target := filepath.Join(root, "generated", "app", "main.py")

	wantPath := filepath.Join(root, "prompt", "5_code_gen", "generated", "app", "main.py_final.prompt")
	if got := store.Path(layer.CodeGen, target, runctx.StageFinal); got != wantPath {
		t.Fatalf("Path = %q, want %q", got, wantPath)
	}

	if same, err := store.Unchanged(layer.CodeGen, target, runctx.StageFinal, "anything"); err != nil || same {
		t.Fatalf("missing prompt must not match: same=%v err=%v", same, err)
	}
	if err := store.Save(layer.CodeGen, target, runctx.StageFinal, "write main.py"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(layer.CodeGen, target, runctx.StageFinal)
	if err != nil || !ok || got != "write main.py" {
		t.Fatalf("Load = %q, %v, %v", got, ok, err)
	}
	same, err := store.Unchanged(layer.CodeGen, target, runctx.StageFinal, " write\tmain.py\n")
	if err != nil || !same {
		t.Fatalf("Unchanged = %v, %v", same, err)
	}
}

func TestStoreSaveAllSkipsEmpty(t *testing.T) {
	root := t.TempDir()
	store := NewStore(config.NewLayout(root))
	target := filepath.Join(root, "requirements", "def_app.md")

	rc := runctx.New("app")
	rc.Layer = layer.RequirementGen
	rc.SetPrompt(runctx.StageFinal, "final")
	if err := store.SaveAll(rc, target); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, ok, _ := store.Load(layer.RequirementGen, target, runctx.StageApply); ok {
		t.Fatal("empty stage should not be written")
	}
	if _, ok, _ := store.Load(layer.RequirementGen, target, runctx.StageFinal); !ok {
		t.Fatal("final stage should be written")
	}
}

func TestFinalModes(t *testing.T) {
	base := Inputs{
		Compiler:  "Compile this:\n{prompt}\n",
		Formatter: "# Format",
		Raw:       "todo app",
		Source:    "source body",
	}

	withPrompt := base
	withPrompt.Mode = layer.ModeGrimoireAndPrompt
	got := Final(withPrompt)
	if !strings.HasPrefix(got, "Compile this:") || !strings.Contains(got, "todo app") || !strings.Contains(got, "source body") {
		t.Fatalf("grimoire-and-prompt = %q", got)
	}
	if !strings.Contains(got, "# Format") {
		t.Fatalf("formatter missing: %q", got)
	}

	grimoireOnly := base
	grimoireOnly.Mode = layer.ModeGrimoireOnly
	if got := Final(grimoireOnly); strings.Contains(got, "todo app") {
		t.Fatalf("grimoire-only must not fold the raw prompt: %q", got)
	}

	promptOnly := base
	promptOnly.Mode = layer.ModePromptOnly
	if got := Final(promptOnly); strings.Contains(got, "Compile this") || !strings.Contains(got, "todo app") {
		t.Fatalf("prompt-only = %q", got)
	}
}

func TestFormatterLanguage(t *testing.T) {
	if got := Formatter("Write in {language}.", "Japanese"); got != "Write in Japanese." {
		t.Fatalf("slot fill = %q", got)
	}
	if got := Formatter("# Format", "German"); !strings.Contains(got, "Output Language") || !strings.Contains(got, "German") {
		t.Fatalf("directive = %q", got)
	}
	if got := Formatter("# Format", ""); got != "# Format" {
		t.Fatalf("no language = %q", got)
	}
}

func TestDiffOrderIncludesChanges(t *testing.T) {
	got := DiffOrder("new source", "+added line")
	if !strings.Contains(got, "new source") || !strings.Contains(got, "+added line") {
		t.Fatalf("DiffOrder = %q", got)
	}
	if got := DiffOrder("new source", ""); strings.Contains(got, "Important changes") {
		t.Fatalf("empty diff should omit section: %q", got)
	}
}

func TestFixPromptsKeepErrorTail(t *testing.T) {
	stderr := strings.Repeat("x", maxErrorChars) + "\nZeroDivisionError: division by zero"
	fix := Fix("main.py", "print(1/0)", stderr)
	if !strings.Contains(fix, "ZeroDivisionError") {
		t.Fatalf("fix prompt lost the error tail")
	}
	if !strings.Contains(fix, "## Program\nprint(1/0)") {
		t.Fatalf("fix prompt missing program section:\n%s", fix)
	}
	reason := Reason("main.py", "print(1/0)", "boom")
	if !strings.HasPrefix(reason, "Explain why") {
		t.Fatalf("unexpected reason prompt: %q", reason)
	}
	withReason := FixWithReason("main.py", "print(1/0)", "boom", "divides by zero")
	if !strings.Contains(withReason, "## Failure analysis\ndivides by zero") {
		t.Fatalf("missing analysis section:\n%s", withReason)
	}
}
