package testsupport

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"layerforge/internal/config"
)

// ConfigOption adjusts a test configuration before its directories are created.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t    testing.TB
	base string
	cfg  config.Config
}

// NewConfig returns defaults rooted in a fresh temp directory, with test model
// names, python3 and sh interpreters, and the work layout already on disk.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	b := &configBuilder{t: t, base: t.TempDir(), cfg: config.Default()}
	b.cfg.Paths = config.Paths{
		WorkDir:     filepath.Join(b.base, "work"),
		GrimoireDir: filepath.Join(b.base, "grimoires"),
		LogDir:      filepath.Join(b.base, "logs"),
	}
	b.cfg.LLM.Model = "test-main"
	b.cfg.LLM.LiteModel = "test-lite"
	b.cfg.LLM.SmartModel = "test-smart"
	b.cfg.Autofix.Interpreters = map[string]string{".py": "python3", ".sh": "sh"}

	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &b.cfg
}

func WithRoute(route config.Route) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Routes = append(b.cfg.LLM.Routes, route)
	}
}

func WithAutofix() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Autofix.Enabled = true
	}
}

// WithStubbedBinaries puts exit-0 scripts named after names (default: the
// configured interpreters) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = slices.Collect(maps.Values(b.cfg.Autofix.Interpreters))
		}
		binDir := filepath.Join(b.base, "bin")
		for _, name := range names {
			WriteFile(b.t, filepath.Join(binDir, name), "#!/bin/sh\nexit 0\n")
			if err := os.Chmod(filepath.Join(binDir, name), 0o755); err != nil {
				b.t.Fatalf("chmod stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory holding the config's work, grimoire and log dirs.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
