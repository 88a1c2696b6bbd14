package grimoire

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"layerforge/internal/logging"
	"layerforge/internal/services"
)

func newResolver(t *testing.T, dir string) *Resolver {
	t.Helper()
	r, err := NewResolver(dir, logging.NewNop())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestResolveEmbeddedDefault(t *testing.T) {
	r := newResolver(t, "")
	tpl, err := r.Resolve(RoleCompiler, "general_prompt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !tpl.Embedded {
		t.Fatal("expected embedded template")
	}
	if !strings.Contains(tpl.Body, "{prompt}") {
		t.Fatalf("body missing placeholder: %q", tpl.Body)
	}
	if strings.HasPrefix(tpl.Body, "---") {
		t.Fatal("front matter should be stripped from body")
	}
	if tpl.Description == "" {
		t.Fatal("expected description from front matter")
	}
}

func TestResolvePrefersConfiguredDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "compiler"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\ndescription: custom web app\n---\nCustom {prompt}\n"
	if err := os.WriteFile(filepath.Join(dir, "compiler", "general_prompt.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newResolver(t, dir)
	tpl, err := r.Resolve(RoleCompiler, "general_prompt.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tpl.Embedded || tpl.Body != "Custom {prompt}\n" || tpl.Description != "custom web app" {
		t.Fatalf("unexpected template: %+v", tpl)
	}
}

func TestResolveMissing(t *testing.T) {
	r := newResolver(t, t.TempDir())
	_, err := r.Resolve(RoleFormatter, "does_not_exist")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveOrDefaultFallsBack(t *testing.T) {
	r := newResolver(t, "")
	for _, role := range Roles() {
		tpl := r.ResolveOrDefault(role, "missing_template")
		if tpl.Name != role.Default() {
			t.Errorf("role %s: got %q, want %q", role, tpl.Name, role.Default())
		}
		if strings.TrimSpace(tpl.Body) == "" {
			t.Errorf("role %s: default body empty", role)
		}
	}
}

func TestCatalogueMergesSources(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "compiler"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "compiler", "web_app.md"), []byte("# Web application\n{prompt}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newResolver(t, dir)
	list, err := r.Catalogue(RoleCompiler)
	if err != nil {
		t.Fatalf("Catalogue: %v", err)
	}
	names := map[string]Template{}
	for _, tpl := range list {
		names[tpl.Name] = tpl
	}
	if _, ok := names["general_prompt"]; !ok {
		t.Fatal("embedded default missing from catalogue")
	}
	web, ok := names["web_app"]
	if !ok {
		t.Fatal("configured grimoire missing from catalogue")
	}
	if web.Description != "Web application" {
		t.Fatalf("description fallback = %q", web.Description)
	}
}
