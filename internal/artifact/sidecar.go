package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"layerforge/internal/fileutil"
)

const recordVersion = 1

// Record is the sidecar metadata stored next to the layout for each target.
type Record struct {
	Version     int       `json:"version"`
	Target      string    `json:"target"`
	Layer       string    `json:"layer,omitempty"`
	SourceHash  string    `json:"source_hash"`
	PromptHash  string    `json:"prompt_hash,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RecordPath returns meta/<root-relative target>.json.
func RecordPath(metaDir, root, target string) string {
	return filepath.Join(metaDir, Rel(root, target)+".json")
}

// WriteRecord stores rec atomically.
func WriteRecord(metaDir, root string, rec Record) error {
	if strings.TrimSpace(rec.Target) == "" {
		return errors.New("artifact: record target is empty")
	}
	rec.Version = recordVersion
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = time.Now().UTC()
	}
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode record: %w", err)
	}
	if err := fileutil.WriteFileAtomic(RecordPath(metaDir, root, rec.Target), payload, 0o644); err != nil {
		return fmt.Errorf("artifact: write record: %w", err)
	}
	return nil
}

// LoadRecord reads the sidecar for target. A missing sidecar is not an error.
func LoadRecord(metaDir, root, target string) (Record, bool, error) {
	payload, err := os.ReadFile(RecordPath(metaDir, root, target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("artifact: read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, true, fmt.Errorf("artifact: decode record: %w", err)
	}
	if rec.Version != recordVersion {
		return Record{}, true, fmt.Errorf("artifact: unsupported record version %d", rec.Version)
	}
	return rec, true, nil
}

// RecordedSourceHash returns the source fingerprint a target was generated
// from, preferring the sidecar and falling back to the HASH trailer.
func RecordedSourceHash(metaDir, root, target string) (string, bool) {
	if rec, ok, err := LoadRecord(metaDir, root, target); err == nil && ok && rec.SourceHash != "" {
		return rec.SourceHash, true
	}
	content, ok, err := ReadText(target)
	if err != nil || !ok {
		return "", false
	}
	return ReadHashTrailer(content)
}
