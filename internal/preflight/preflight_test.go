package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"layerforge/internal/config"
	"layerforge/internal/deps"
	"layerforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGrimoireDirectory_AbsentPasses(t *testing.T) {
	result := CheckGrimoireDirectory(filepath.Join(t.TempDir(), "grimoires"))
	if !result.Passed {
		t.Fatalf("expected absent grimoire dir to pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "embedded") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckGrimoireDirectory_FileFails(t *testing.T) {
	f := filepath.Join(t.TempDir(), "grimoires")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckGrimoireDirectory(f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRoute_MissingKeyNamesEnv(t *testing.T) {
	result := CheckRoute(context.Background(), config.Route{Name: "openai", Provider: "openai", Model: "gpt-4o-mini"}, false)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	if !strings.Contains(result.Detail, "OPENAI_API_KEY") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckRoute_KeyOnly(t *testing.T) {
	result := CheckRoute(context.Background(), config.Route{Name: "groq", Provider: "groq", Model: "m", APIKey: "k"}, false)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRoute_LiveOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	route := config.Route{Name: "local", Provider: "openai", Model: "m", APIKey: "good-key", BaseURL: srv.URL}
	result := CheckRoute(context.Background(), route, true)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRoute_LiveBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	route := config.Route{Name: "local", Provider: "openai", Model: "m", APIKey: "bad-key", BaseURL: srv.URL}
	if CheckRoute(context.Background(), route, true).Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestInterpreterResults(t *testing.T) {
	results := InterpreterResults([]deps.Status{
		{Requirement: deps.Requirement{Command: "python3", Ext: ".py"}, Path: "/usr/bin/python3", Available: true},
		{Requirement: deps.Requirement{Command: "ruby", Ext: ".rb", Optional: true}, Detail: `binary "ruby" not found`},
		{Requirement: deps.Requirement{Command: "node"}, Detail: `binary "node" not found`},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed || !results[1].Passed {
		t.Fatalf("available and optional interpreters should pass: %+v", results)
	}
	if results[2].Passed {
		t.Fatal("required missing interpreter should fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Options{}); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.GrimoireDir = ""
	cfg.Paths.LogDir = t.TempDir()
	cfg.LLM.Routes = []config.Route{{Name: "anthropic", Provider: "anthropic", Model: "m", APIKey: "k"}}
	cfg.Autofix.Enabled = false

	results := RunAll(context.Background(), &cfg, Options{})
	// work, grimoire, log, one route
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
	if Failed(results) {
		t.Fatalf("unexpected failure: %+v", results)
	}
}

func TestRunAll_NoRoutesFails(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = ""
	cfg.LLM.Routes = nil

	results := RunAll(context.Background(), &cfg, Options{})
	if !Failed(results) {
		t.Fatal("expected a failure without routes")
	}
}

func TestRunAll_RouteFilter(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.GrimoireDir = ""
	cfg.Paths.LogDir = ""
	cfg.LLM.Routes = []config.Route{
		{Name: "anthropic", Provider: "anthropic", Model: "m", APIKey: "k"},
		{Name: "openai", Provider: "openai", Model: "m"},
	}
	cfg.Autofix.Enabled = false

	results := RunAll(context.Background(), &cfg, Options{Route: "anthropic"})
	var routes []string
	for _, r := range results {
		if strings.HasPrefix(r.Name, "Route ") {
			routes = append(routes, r.Name)
		}
	}
	if len(routes) != 1 || routes[0] != "Route anthropic" {
		t.Fatalf("route results = %v", routes)
	}
	if Failed(results) {
		t.Fatalf("keyless route outside the filter should not fail: %+v", results)
	}

	results = RunAll(context.Background(), &cfg, Options{Route: "missing"})
	if !Failed(results) {
		t.Fatal("expected a failure for an unknown route")
	}
}

func TestRunAll_IncludesInterpretersWhenAutofixEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = ""
	cfg.LLM.Routes = []config.Route{{Name: "anthropic", Provider: "anthropic", Model: "m", APIKey: "k"}}
	cfg.Autofix.Enabled = true
	cfg.Autofix.Interpreters = map[string]string{".sh": "sh", ".zz": "layerforge-missing-interpreter"}

	results := RunAll(context.Background(), &cfg, Options{})
	var found int
	for _, r := range results {
		if strings.HasPrefix(r.Name, "Interpreter ") {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected 2 interpreter results, got %d", found)
	}
	if Failed(results) {
		t.Fatalf("missing optional interpreter should not fail: %+v", results)
	}
}

func TestRunAll_StubbedInterpretersFound(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithAutofix(),
		testsupport.WithStubbedBinaries(),
		testsupport.WithRoute(config.Route{Name: "primary", Provider: "anthropic", Model: "test-main", APIKey: "k"}),
	)

	results := RunAll(context.Background(), cfg, Options{})
	if Failed(results) {
		t.Fatalf("unexpected failure: %+v", results)
	}
	for _, r := range results {
		if strings.HasPrefix(r.Name, "Interpreter ") && !filepath.IsAbs(r.Detail) {
			t.Fatalf("interpreter %s not found: %s", r.Name, r.Detail)
		}
	}
}
