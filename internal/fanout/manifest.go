package fanout

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"layerforge/internal/artifact"
)

// Manifest is the parsed file list of an info-structure document.
type Manifest struct {
	Paths    []string
	Rejected []string
}

// LoadManifest reads and parses the manifest at p.
func LoadManifest(p string) (Manifest, error) {
	text, ok, err := artifact.ReadText(p)
	if err != nil {
		return Manifest{}, err
	}
	if !ok {
		return Manifest{}, fmt.Errorf("manifest %s does not exist", p)
	}
	return ParseManifest(text), nil
}

// ParseManifest extracts one relative file path per line. Fences, list
// bullets, comments, and entries without an extension are skipped; absolute
// paths and paths escaping the project are rejected. Duplicates keep their
// first position.
func ParseManifest(text string) Manifest {
	var m Manifest
	seen := map[string]struct{}{}
	for _, raw := range strings.Split(artifact.StripHashTrailer(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*+ \t"))
		line = strings.Trim(line, "`\"'")
		if i := strings.Index(line, " "); i >= 0 {
			// Trailing descriptions such as "main.py  entry point".
			line = line[:i]
		}
		line = strings.TrimRight(line, ":,;")
		line = filepath.ToSlash(line)
		if line == "" || path.Ext(line) == "" {
			continue
		}
		if path.IsAbs(line) || filepath.IsAbs(line) {
			m.Rejected = append(m.Rejected, line)
			continue
		}
		cleaned := path.Clean(line)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			m.Rejected = append(m.Rejected, line)
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		m.Paths = append(m.Paths, cleaned)
	}
	return m
}
