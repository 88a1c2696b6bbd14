package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"layerforge/internal/converter"
	"layerforge/internal/grimoire"
	"layerforge/internal/layer"
	"layerforge/internal/logging"
	"layerforge/internal/runctx"
	"layerforge/internal/services/llm"
)

type templateSpec struct {
	role      grimoire.Role
	name      string
	formatter string
}

var layerTemplates = map[layer.Layer]templateSpec{
	layer.RequestGen:       {role: grimoire.RoleCompiler, name: "request", formatter: "md_comment"},
	layer.RequirementGen:   {role: grimoire.RoleArchitect, name: "architect", formatter: "md_comment"},
	layer.InfoStructureGen: {role: grimoire.RoleCompiler, name: "info_structure", formatter: "md_comment"},
	layer.FileRequirement:  {role: grimoire.RoleCompiler, name: "file_requirement", formatter: "md_comment"},
	layer.CodeGen:          {role: grimoire.RoleCompiler, name: "general_prompt", formatter: "code"},
	layer.CodebaseGen:      {role: grimoire.RoleCompiler, name: "codebase", formatter: "md_comment"},
}

// templateNames returns the role and names used for the current layer. A
// user compiler applies while it is set on the run context, which the
// orchestrator clears after the first layer. The architect override applies
// to the architect layer, and the formatter override to every document layer.
func templateNames(rc *runctx.RunContext) (grimoire.Role, string, string) {
	spec, ok := layerTemplates[rc.Layer]
	if !ok {
		spec = templateSpec{role: grimoire.RoleCompiler, name: grimoire.RoleCompiler.Default(), formatter: grimoire.RoleFormatter.Default()}
	}
	role, name, formatter := spec.role, spec.name, spec.formatter
	if spec.role == grimoire.RoleArchitect && rc.Grimoires.Architect != "" {
		name = rc.Grimoires.Architect
	}
	if rc.Grimoires.Compiler != "" {
		role, name = grimoire.RoleCompiler, rc.Grimoires.Compiler
	}
	if rc.Grimoires.Formatter != "" && spec.formatter != "code" {
		formatter = rc.Grimoires.Formatter
	}
	return role, name, formatter
}

// templates resolves the compiler and formatter bodies for the current layer,
// falling back to role defaults.
func templates(resolver *grimoire.Resolver, rc *runctx.RunContext) (string, string) {
	role, name, formatter := templateNames(rc)
	return resolver.ResolveOrDefault(role, name).Body,
		resolver.ResolveOrDefault(grimoire.RoleFormatter, formatter).Body
}

type compilerChoice struct {
	Name string `json:"name"`
}

// chooseCompiler asks the lite model to pick a compiler grimoire for the raw
// prompt from the catalogue descriptions. The run continues in
// grimoire-and-prompt mode with the choice, or with the layer default when
// the answer names no known grimoire.
func chooseCompiler(ctx context.Context, completer converter.Completer, resolver *grimoire.Resolver, rc *runctx.RunContext, logger *slog.Logger) error {
	rc.Mode = layer.ModeGrimoireAndPrompt
	catalogue, err := resolver.Catalogue(grimoire.RoleCompiler)
	if err != nil {
		return err
	}
	request := strings.TrimSpace(rc.Prompt(runctx.StageInput))
	if request == "" || len(catalogue) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Choose the prompt template that best fits the request below. " +
		"Answer with JSON only, in the form {\"name\": \"<template name>\"}.\n\n## Templates\n")
	known := make(map[string]struct{}, len(catalogue))
	for _, tpl := range catalogue {
		known[tpl.Name] = struct{}{}
		fmt.Fprintf(&b, "- %s: %s\n", tpl.Name, tpl.Description)
	}
	b.WriteString("\n## Request\n")
	b.WriteString(request)
	b.WriteString("\n")

	rc.Calls++
	completion, err := completer.Complete(ctx, llm.Request{
		Model:       rc.Models.Lite,
		Prompt:      b.String(),
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return err
	}

	var choice compilerChoice
	if err := llm.DecodeLLMJSON(completion.Text, &choice); err != nil {
		choice.Name = strings.Trim(strings.TrimSpace(completion.Text), "\"`")
	}
	choice.Name = strings.TrimSuffix(strings.TrimSpace(choice.Name), ".md")
	if _, ok := known[choice.Name]; !ok {
		logging.WarnWithContext(logger, "grimoire search returned an unknown template", "grimoire_search_fallback",
			logging.String("answer", strings.TrimSpace(completion.Text)),
			logging.String(logging.FieldErrorHint, "name a compiler with --compiler"),
			logging.String(logging.FieldImpact, "layer default compiler used"),
		)
		return nil
	}
	rc.Grimoires.Compiler = choice.Name
	rc.Record("grimoire(search): " + choice.Name)
	logger.Info("grimoire selected",
		logging.Args(logging.DecisionAttrs("grimoire_search", choice.Name, "catalogue match")...)...,
	)
	return nil
}
