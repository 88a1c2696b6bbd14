package cleanup

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"layerforge/internal/logging"
)

// Result contains the outcome of a prune.
type Result struct {
	Removed     []string
	RemovedDirs []string
	Kept        int
	Errors      []Error
	DryRun      bool
}

// Error pairs a path with its removal error.
type Error struct {
	Path string
	Err  error
}

// Owned reports whether rel is a document the pipeline writes next to the
// generated code.
func Owned(rel string) bool {
	base := path.Base(filepath.ToSlash(rel))
	stem := strings.TrimSuffix(base, path.Ext(base))
	switch {
	case base == "info_structure.md":
		return true
	case strings.HasSuffix(base, "_requirement.md"):
		return true
	case strings.HasSuffix(stem, "_merged"):
		return true
	}
	return false
}

// Prune removes files under root that are neither listed in keep (paths
// relative to root) nor Owned, then removes directories left empty. With
// dryRun the files are only reported.
func Prune(root string, keep []string, dryRun bool, logger *slog.Logger) (Result, error) {
	result := Result{DryRun: dryRun}
	if logger == nil {
		logger = logging.NewNop()
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return result, nil
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	listed := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		listed[path.Clean(filepath.ToSlash(p))] = struct{}{}
	}

	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, Error{Path: p, Err: err})
			return nil
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		if _, ok := listed[rel]; ok || Owned(rel) {
			result.Kept++
			return nil
		}
		if dryRun {
			result.Removed = append(result.Removed, rel)
			logger.Info("would remove unlisted file",
				logging.String("path", rel),
				logging.String(logging.FieldEventType, "cleanup_dry_run"),
			)
			return nil
		}
		if err := os.Remove(p); err != nil {
			result.Errors = append(result.Errors, Error{Path: rel, Err: err})
			logger.Warn("failed to remove unlisted file",
				logging.String("path", rel),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check generated directory permissions"),
				logging.String(logging.FieldImpact, "stale file left in the project"),
			)
			return nil
		}
		result.Removed = append(result.Removed, rel)
		logger.Info("removed unlisted file",
			logging.String("path", rel),
			logging.String(logging.FieldEventType, "cleanup"),
		)
		return nil
	})
	if err != nil {
		return result, err
	}
	if dryRun {
		return result, nil
	}

	// Deepest first so parents empty out after their children.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			result.Errors = append(result.Errors, Error{Path: dir, Err: err})
			continue
		}
		rel, _ := filepath.Rel(root, dir)
		result.RemovedDirs = append(result.RemovedDirs, filepath.ToSlash(rel))
	}
	return result, nil
}
