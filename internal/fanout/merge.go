package fanout

import (
	"fmt"
	"path/filepath"
	"strings"

	"layerforge/internal/artifact"
	"layerforge/internal/fileutil"
)

// SourceHeader labels each block of a merged source.
const SourceHeader = "# Source: "

// Set is one generation unit. More than one source means the sources are
// merged before conversion.
type Set struct {
	Sources []string
	Target  string
	Context string
}

// MergedPath returns <target stem>_merged<ext> beside the target.
func MergedPath(target string) string {
	ext := filepath.Ext(target)
	return strings.TrimSuffix(target, ext) + "_merged" + ext
}

// Merge groups sets by target in first-seen order. Groups with several
// sources are written to a merged document, each block headed by its
// root-relative origin, and become single-source sets.
func Merge(root string, sets []Set) ([]Set, error) {
	index := map[string]int{}
	var grouped []Set
	for _, set := range sets {
		target := filepath.Clean(set.Target)
		i, ok := index[target]
		if !ok {
			index[target] = len(grouped)
			grouped = append(grouped, Set{Target: target, Context: set.Context})
			i = len(grouped) - 1
		}
		for _, src := range set.Sources {
			if !containsPath(grouped[i].Sources, src) {
				grouped[i].Sources = append(grouped[i].Sources, src)
			}
		}
		if grouped[i].Context == "" {
			grouped[i].Context = set.Context
		}
	}

	for i, set := range grouped {
		if len(set.Sources) < 2 {
			continue
		}
		merged, err := mergeSources(root, set.Sources)
		if err != nil {
			return nil, err
		}
		mergedPath := MergedPath(set.Target)
		if err := fileutil.WriteFileAtomic(mergedPath, []byte(merged), 0o644); err != nil {
			return nil, fmt.Errorf("write merged source: %w", err)
		}
		grouped[i].Sources = []string{mergedPath}
	}
	return grouped, nil
}

func mergeSources(root string, sources []string) (string, error) {
	var b strings.Builder
	for _, src := range sources {
		text, ok, err := artifact.ReadText(src)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("merge source %s does not exist", src)
		}
		b.WriteString(SourceHeader)
		b.WriteString(filepath.ToSlash(artifact.Rel(root, src)))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(artifact.StripHashTrailer(text), "\n"))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func containsPath(paths []string, p string) bool {
	for _, existing := range paths {
		if filepath.Clean(existing) == filepath.Clean(p) {
			return true
		}
	}
	return false
}
