package artifact

import (
	"fmt"
	"path/filepath"
	"strings"

	"layerforge/internal/config"
	"layerforge/internal/fileutil"
)

// File is one live artifact plus its mirrored snapshot from the previous run.
type File struct {
	Path     string
	PastPath string
	Hash     string
	Exists   bool
	Size     int64
}

// Paths tracks the source, target, and context of one generation unit.
// Hashes are recomputed every time the assignment changes.
type Paths struct {
	layout  config.Layout
	Source  File
	Target  File
	Context File
}

// NewPaths returns an empty assignment rooted at the layout.
func NewPaths(layout config.Layout) *Paths {
	return &Paths{layout: layout}
}

// Layout returns the work directory layout the paths mirror into.
func (p *Paths) Layout() config.Layout {
	return p.layout
}

// Assign points the unit at new files and refreshes hashes and past mirrors.
// An empty context clears it.
//
// Past source and context snapshots are keyed by the target, not by their own
// path: several targets of a fan-out layer may share one source, and each must
// diff against the source text it was last generated from.
func (p *Paths) Assign(source, target, context string) error {
	var err error
	if p.Target, err = p.describe(target, p.layout.PastTargetDir, ""); err != nil {
		return err
	}
	if p.Source, err = p.describe(source, p.layout.PastSourceDir, p.Target.Path); err != nil {
		return err
	}
	if p.Context, err = p.describe(context, p.layout.PastContextDir, p.Target.Path); err != nil {
		return err
	}
	return nil
}

// Refresh recomputes hashes for the current assignment.
func (p *Paths) Refresh() error {
	return p.Assign(p.Source.Path, p.Target.Path, p.Context.Path)
}

// describe hashes path and mirrors it under pastDir, keyed by owner when set.
func (p *Paths) describe(path, pastDir, owner string) (File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return File{}, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	hash, exists, err := HashFile(abs)
	if err != nil {
		return File{}, fmt.Errorf("hash %s: %w", abs, err)
	}
	key := abs
	if owner != "" {
		key = owner
	}
	f := File{
		Path:     abs,
		PastPath: Mirror(p.layout.Root, pastDir, key),
		Hash:     hash,
		Exists:   exists,
	}
	if exists {
		f.Size = fileSize(abs)
	}
	return f, nil
}

// Archive snapshots the live source, target, and context into their past
// mirrors so the next run can diff against them. Missing files are skipped.
// Writes are atomic, so a concurrent reader sees the old or the new snapshot.
func (p *Paths) Archive() error {
	for _, f := range []File{p.Source, p.Target, p.Context} {
		if f.Path == "" || f.PastPath == "" {
			continue
		}
		data, ok, err := fileutil.ReadIfExists(f.Path)
		if err != nil {
			return fmt.Errorf("archive %s: %w", f.Path, err)
		}
		if !ok {
			continue
		}
		if err := fileutil.WriteFileAtomic(f.PastPath, data, 0o644); err != nil {
			return fmt.Errorf("archive %s: %w", f.Path, err)
		}
	}
	return nil
}

// Rel returns path relative to root. Paths outside root keep their cleaned
// absolute form without the leading separator so they still mirror uniquely.
func Rel(root, path string) string {
	cleaned := filepath.Clean(path)
	if root != "" {
		if rel, err := filepath.Rel(root, cleaned); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel
		}
	}
	trimmed := strings.TrimPrefix(cleaned, filepath.VolumeName(cleaned))
	return strings.TrimLeft(trimmed, string(filepath.Separator))
}

// Mirror maps a live path to its location under a past directory.
func Mirror(root, pastDir, path string) string {
	return filepath.Join(pastDir, Rel(root, path))
}
