package prompt

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"layerforge/internal/artifact"
	"layerforge/internal/config"
	"layerforge/internal/fileutil"
	"layerforge/internal/layer"
	"layerforge/internal/runctx"
)

// Store persists stage prompts under prompt/<layer>/<target><suffix>.prompt.
type Store struct {
	layout config.Layout
}

// NewStore returns a store rooted at the layout's prompt directory.
func NewStore(layout config.Layout) *Store {
	return &Store{layout: layout}
}

// Path returns where the stage prompt for target is persisted.
func (s *Store) Path(l layer.Layer, target string, stage runctx.PromptStage) string {
	rel := artifact.Rel(s.layout.Root, target)
	return filepath.Join(s.layout.PromptDir, string(l), rel+stage.Suffix()+".prompt")
}

// Save writes text for the stage. Empty prompts are not persisted.
func (s *Store) Save(l layer.Layer, target string, stage runctx.PromptStage, text string) error {
	if text == "" {
		return nil
	}
	if err := fileutil.WriteFileAtomic(s.Path(l, target, stage), []byte(text), 0o644); err != nil {
		return fmt.Errorf("save %s prompt: %w", stage, err)
	}
	return nil
}

// SaveAll persists every non-empty stage recorded in rc for target.
func (s *Store) SaveAll(rc *runctx.RunContext, target string) error {
	for _, stage := range runctx.Stages() {
		if err := s.Save(rc.Layer, target, stage, rc.Prompt(stage)); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the persisted stage prompt, "" when none was saved.
func (s *Store) Load(l layer.Layer, target string, stage runctx.PromptStage) (string, bool, error) {
	data, ok, err := fileutil.ReadIfExists(s.Path(l, target, stage))
	if err != nil {
		return "", false, fmt.Errorf("load %s prompt: %w", stage, err)
	}
	return string(data), ok, nil
}

// Unchanged reports whether current matches the prompt persisted by the
// previous run. A missing prompt never matches.
func (s *Store) Unchanged(l layer.Layer, target string, stage runctx.PromptStage, current string) (bool, error) {
	past, ok, err := s.Load(l, target, stage)
	if err != nil || !ok {
		return false, err
	}
	return IsSame(past, current), nil
}

// IsSame compares two prompts ignoring all whitespace.
func IsSame(a, b string) bool {
	return stripSpace(a) == stripSpace(b)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
