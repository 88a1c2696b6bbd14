package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"layerforge/internal/config"
	"layerforge/internal/fileutil"
	"layerforge/internal/layer"
	"layerforge/internal/runctx"
	"layerforge/internal/services"
	"layerforge/internal/textutil"
)

// Request describes one pipeline invocation.
type Request struct {
	// Input is a path to the input document or the input text itself.
	Input string
	// Prompt is the raw user instruction folded into the first layer.
	Prompt    string
	Name      string
	Compiler  string
	Formatter string
	Architect string
	Model     string
	Language  string
	// Intent is folded into every layer's prompt.
	Intent     string
	Mode       layer.Mode
	StartLayer layer.Layer
	EndLayer   layer.Layer
}

func (r Request) withDefaults() Request {
	if r.StartLayer == "" {
		r.StartLayer = layer.First()
	}
	if r.EndLayer == "" {
		r.EndLayer = layer.Last()
	}
	if r.Mode == "" {
		r.Mode = layer.ModeGrimoireAndPrompt
	}
	return r
}

// Validate checks the layer range and that the run can be named.
func (r Request) Validate() error {
	r = r.withDefaults()
	if !r.StartLayer.Valid() {
		return services.Wrap(services.ErrValidation, "workflow", "validate", fmt.Sprintf("Unknown start layer %q", r.StartLayer), nil)
	}
	if !r.EndLayer.Valid() {
		return services.Wrap(services.ErrValidation, "workflow", "validate", fmt.Sprintf("Unknown end layer %q", r.EndLayer), nil)
	}
	if r.EndLayer.Level() < r.StartLayer.Level() {
		return services.Wrap(services.ErrValidation, "workflow", "validate",
			fmt.Sprintf("End layer %s comes before start layer %s", r.EndLayer, r.StartLayer), nil)
	}
	if _, err := layer.ParseMode(string(r.Mode)); err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "validate", "Invalid mode", err)
	}
	if r.StartLayer == layer.First() && strings.TrimSpace(r.Input) == "" {
		return services.Wrap(services.ErrValidation, "workflow", "validate", "An input file or text is required for "+string(layer.First()), nil)
	}
	if strings.TrimSpace(r.Input) == "" && strings.TrimSpace(r.Name) == "" {
		return services.Wrap(services.ErrValidation, "workflow", "validate", "An input or a name is required to resume a run", nil)
	}
	return nil
}

// inputIsFile reports whether the input names an existing regular file.
func inputIsFile(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" || strings.ContainsRune(input, '\n') {
		return false
	}
	info, err := os.Stat(input)
	return err == nil && !info.IsDir()
}

// canonicalName returns the sanitized run name.
func (r Request) canonicalName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return textutil.SanitizeToken(name)
	}
	return textutil.CanonicalName(r.Input, inputIsFile(r.Input))
}

// newRunContext builds the run context for req. Inline input text is written
// to the prompt directory so the first layer has a source file to hash and
// diff.
func newRunContext(cfg *config.Config, req Request) (*runctx.RunContext, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := req.canonicalName()
	names := NewNames(cfg.Layout(), name)

	rc := runctx.New(name)
	rc.Layer = req.StartLayer
	rc.Mode = req.Mode
	rc.Models = runctx.Models{
		Main:  firstNonEmpty(req.Model, cfg.LLM.Model),
		Lite:  firstNonEmpty(cfg.LLM.LiteModel, req.Model, cfg.LLM.Model),
		Smart: firstNonEmpty(cfg.LLM.SmartModel, req.Model, cfg.LLM.Model),
	}
	rc.Grimoires = runctx.Grimoires{
		Compiler:  strings.TrimSpace(req.Compiler),
		Formatter: strings.TrimSpace(req.Formatter),
		Architect: strings.TrimSpace(req.Architect),
	}
	rc.Language = firstNonEmpty(req.Language, cfg.Generation.Language)
	rc.Intent = strings.TrimSpace(req.Intent)
	rc.SetPrompt(runctx.StageInput, strings.TrimSpace(req.Prompt))

	input := strings.TrimSpace(req.Input)
	switch {
	case input == "":
	case inputIsFile(input):
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, fmt.Errorf("resolve input: %w", err)
		}
		rc.Input = abs
	default:
		rc.Input = names.Input()
		if err := fileutil.WriteFileAtomic(rc.Input, []byte(input+"\n"), 0o644); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "workflow", "persist input", "Cannot write inline input", err)
		}
	}
	return rc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
