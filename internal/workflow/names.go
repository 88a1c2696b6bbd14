package workflow

import (
	"path"
	"path/filepath"
	"strings"

	"layerforge/internal/config"
)

// Names derives every artifact path of a run from its canonical name.
type Names struct {
	layout config.Layout
	name   string
}

// NewNames binds the layout to a canonical name.
func NewNames(layout config.Layout, name string) Names {
	return Names{layout: layout, name: name}
}

// Name returns the canonical name.
func (n Names) Name() string { return n.name }

// Input is where inline input text is persisted for the first layer.
func (n Names) Input() string {
	return filepath.Join(n.layout.PromptDir, "input_"+n.name+".md")
}

// Request is the request document.
func (n Names) Request() string {
	return filepath.Join(n.layout.RequirementsDir, "request_"+n.name+".md")
}

// Definition is the requirement definition document.
func (n Names) Definition() string {
	return filepath.Join(n.layout.RequirementsDir, "def_"+n.name+".md")
}

// Manifest is the file structure listing consumed by the fan-out layers.
func (n Names) Manifest() string {
	return filepath.Join(n.layout.RequirementsDir, "structure_"+n.name+".md")
}

// Project is the root of the generated code base.
func (n Names) Project() string {
	return filepath.Join(n.layout.GeneratedDir, n.name)
}

// Code is the generated file for a manifest path.
func (n Names) Code(rel string) string {
	return filepath.Join(n.Project(), filepath.FromSlash(rel))
}

// Requirement is the per-file requirement document for a manifest path.
func (n Names) Requirement(rel string) string {
	dir, base := path.Split(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return filepath.Join(n.Project(), filepath.FromSlash(dir), stem+"_requirement.md")
}

// InfoStructure is the per-directory summary for a manifest path.
func (n Names) InfoStructure(rel string) string {
	return filepath.Join(n.Project(), filepath.FromSlash(path.Dir(rel)), "info_structure.md")
}
