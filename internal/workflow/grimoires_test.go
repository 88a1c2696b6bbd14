package workflow

import (
	"testing"

	"layerforge/internal/grimoire"
	"layerforge/internal/layer"
	"layerforge/internal/runctx"
)

func TestTemplateNames(t *testing.T) {
	cases := []struct {
		name      string
		layer     layer.Layer
		grimoires runctx.Grimoires
		role      grimoire.Role
		compiler  string
		formatter string
	}{
		{"layer default", layer.InfoStructureGen, runctx.Grimoires{}, grimoire.RoleCompiler, "info_structure", "md_comment"},
		{"architect layer", layer.RequirementGen, runctx.Grimoires{Architect: "strict"}, grimoire.RoleArchitect, "strict", "md_comment"},
		{"user compiler wins", layer.RequirementGen, runctx.Grimoires{Compiler: "mine"}, grimoire.RoleCompiler, "mine", "md_comment"},
		{"formatter override", layer.RequestGen, runctx.Grimoires{Formatter: "plain"}, grimoire.RoleCompiler, "request", "plain"},
		{"code keeps code formatter", layer.CodeGen, runctx.Grimoires{Formatter: "plain"}, grimoire.RoleCompiler, "general_prompt", "code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc := runctx.New("demo")
			rc.Layer = tc.layer
			rc.Grimoires = tc.grimoires
			role, compiler, formatter := templateNames(rc)
			if role != tc.role || compiler != tc.compiler || formatter != tc.formatter {
				t.Fatalf("got (%s, %s, %s)", role, compiler, formatter)
			}
		})
	}
}
