package config

import "path/filepath"

// Layout names the persisted directories under the work directory.
type Layout struct {
	Root            string
	PromptDir       string
	PastSourceDir   string
	PastTargetDir   string
	PastContextDir  string
	RequirementsDir string
	GeneratedDir    string
	MetaDir         string
	LedgerPath      string
	LockPath        string
}

// Layout derives the work directory layout from the configured work dir.
func (c *Config) Layout() Layout {
	return NewLayout(c.Paths.WorkDir)
}

// NewLayout builds the layout rooted at root.
func NewLayout(root string) Layout {
	past := filepath.Join(root, "past")
	return Layout{
		Root:            root,
		PromptDir:       filepath.Join(root, "prompt"),
		PastSourceDir:   filepath.Join(past, "source"),
		PastTargetDir:   filepath.Join(past, "target"),
		PastContextDir:  filepath.Join(past, "context"),
		RequirementsDir: filepath.Join(root, "requirements"),
		GeneratedDir:    filepath.Join(root, "generated"),
		MetaDir:         filepath.Join(root, "meta"),
		LedgerPath:      filepath.Join(root, "ledger.db"),
		LockPath:        filepath.Join(root, ".layerforge.lock"),
	}
}

// Dirs lists every directory that must exist before a run.
func (l Layout) Dirs() []string {
	return []string{
		l.Root,
		l.PromptDir,
		l.PastSourceDir,
		l.PastTargetDir,
		l.PastContextDir,
		l.RequirementsDir,
		l.GeneratedDir,
		l.MetaDir,
	}
}
