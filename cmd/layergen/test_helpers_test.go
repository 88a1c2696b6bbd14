package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"layerforge/internal/config"
	"layerforge/internal/converter"
	"layerforge/internal/router"
	"layerforge/internal/services/llm"
)

var filler = strings.Repeat("Generated document line with enough detail to keep.\n", 4)

// countingLLM answers every request with filler text.
type countingLLM struct {
	mu    sync.Mutex
	calls int
}

func (c *countingLLM) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return llm.Completion{Text: filler, Model: req.Model, InputTokens: 10, OutputTokens: 20}, nil
}

func (c *countingLLM) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type cliTestEnv struct {
	baseDir    string
	workDir    string
	configPath string
	llm        *countingLLM
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, p := range config.KnownProviders {
		t.Setenv(p.EnvKey, "")
	}

	env := &cliTestEnv{
		baseDir:    base,
		workDir:    filepath.Join(base, "work"),
		configPath: filepath.Join(homeDir, ".config", "layerforge", "config.toml"),
		llm:        &countingLLM{},
	}
	writeTestConfig(t, env)

	previous := completerFactory
	completerFactory = func(*config.Config, *router.Stats, *slog.Logger) (converter.Completer, func(), error) {
		return env.llm, func() {}, nil
	}
	t.Cleanup(func() { completerFactory = previous })

	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(env.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(`[paths]
work_dir = %q
grimoire_dir = %q
log_dir = %q

[llm]
model = "test-main"
lite_model = "test-lite"
smart_model = "test-smart"

[[llm.routes]]
name = "primary"
provider = "anthropic"
model = "test-main"
api_key = "test-key"

[logging]
level = "error"
`,
		env.workDir,
		filepath.Join(env.baseDir, "grimoires"),
		filepath.Join(env.baseDir, "logs"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
