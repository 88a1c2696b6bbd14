package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"layerforge/internal/artifact"
	"layerforge/internal/config"
	"layerforge/internal/converter"
	"layerforge/internal/fanout"
	"layerforge/internal/grimoire"
	"layerforge/internal/layer"
	"layerforge/internal/logging"
	"layerforge/internal/runctx"
	"layerforge/internal/services"
	"layerforge/internal/stage"
)

// generation bundles what the converting layers share.
type generation struct {
	conv     *converter.Converter
	resolver *grimoire.Resolver
	layout   config.Layout
	limit    int
	progress fanout.ProgressFunc
}

// pathFunc returns the source, target and context of a single layer.
type pathFunc func(rc *runctx.RunContext, names Names) (string, string, string)

// singleHandler converts one source into one target.
type singleHandler struct {
	layer  layer.Layer
	gen    *generation
	paths  pathFunc
	logger *slog.Logger
}

func newSingleHandler(l layer.Layer, gen *generation, paths pathFunc) *singleHandler {
	return &singleHandler{layer: l, gen: gen, paths: paths, logger: logging.NewNop()}
}

func (h *singleHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

func (h *singleHandler) Prepare(_ context.Context, rc *runctx.RunContext) error {
	source, _, _ := h.paths(rc, NewNames(h.gen.layout, rc.Name))
	if source == "" {
		return services.Wrap(services.ErrValidation, string(h.layer), "prepare", "No input document for this run", nil)
	}
	return stage.RequireFile(string(h.layer), "source", source)
}

func (h *singleHandler) Execute(ctx context.Context, rc *runctx.RunContext) (stage.Report, error) {
	source, target, contextPath := h.paths(rc, NewNames(h.gen.layout, rc.Name))
	compiler, formatter := templates(h.gen.resolver, rc)
	res, err := h.gen.conv.Convert(ctx, rc, converter.Job{
		Source:    source,
		Target:    target,
		Context:   contextPath,
		Compiler:  compiler,
		Formatter: formatter,
	})
	report := stage.Report{Targets: []stage.TargetReport{targetReport(h.gen.layout.Root, target, res, err)}}
	return report, err
}

func (h *singleHandler) HealthCheck(context.Context) stage.Health {
	if h.gen == nil || h.gen.conv == nil {
		return stage.Unhealthy(string(h.layer), "converter unavailable")
	}
	return stage.Healthy(string(h.layer))
}

// expandFunc builds the generation units of a fan-out layer from the manifest.
type expandFunc func(names Names, manifest fanout.Manifest) []fanout.Set

// fanoutHandler converts one unit per manifest path concurrently.
type fanoutHandler struct {
	layer  layer.Layer
	gen    *generation
	expand expandFunc
	code   bool
	logger *slog.Logger
}

func newFanoutHandler(l layer.Layer, gen *generation, code bool, expand expandFunc) *fanoutHandler {
	return &fanoutHandler{layer: l, gen: gen, code: code, expand: expand, logger: logging.NewNop()}
}

func (h *fanoutHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

func (h *fanoutHandler) Prepare(_ context.Context, rc *runctx.RunContext) error {
	_, err := loadManifest(string(h.layer), NewNames(h.gen.layout, rc.Name), h.logger)
	return err
}

func (h *fanoutHandler) Execute(ctx context.Context, rc *runctx.RunContext) (stage.Report, error) {
	names := NewNames(h.gen.layout, rc.Name)
	manifest, err := loadManifest(string(h.layer), names, h.logger)
	if err != nil {
		return stage.Report{}, err
	}
	sets := h.expand(names, manifest)
	if len(sets) == 0 {
		rc.Record("skip(nothing to generate): " + string(h.layer))
		return stage.Report{}, nil
	}

	compiler, formatter := templates(h.gen.resolver, rc)
	engine := fanout.NewEngine(h.gen.conv, h.gen.layout.Root,
		fanout.WithLimit(h.gen.limit),
		fanout.WithProgress(h.gen.progress),
		fanout.WithLogger(h.logger),
	)
	outcomes, err := engine.Run(ctx, rc, sets, func(set fanout.Set) converter.Job {
		return converter.Job{
			Source:    set.Sources[0],
			Target:    set.Target,
			Context:   set.Context,
			Compiler:  compiler,
			Formatter: formatter,
			Code:      h.code,
		}
	})
	var report stage.Report
	var firstErr error
	for _, o := range outcomes {
		report.Targets = append(report.Targets, targetReport(h.gen.layout.Root, o.Set.Target, o.Result, o.Err))
		if o.Err != nil && firstErr == nil {
			firstErr = o.Err
		}
	}
	if err != nil {
		return report, err
	}
	// Individual failures stay in the history; a layer where nothing
	// succeeded cannot feed the next one.
	if failed := report.Failed(); failed > 0 && failed == len(report.Targets) {
		return report, fmt.Errorf("%s: all %d targets failed: %w", h.layer, failed, firstErr)
	}
	return report, nil
}

func (h *fanoutHandler) HealthCheck(context.Context) stage.Health {
	if h.gen == nil || h.gen.conv == nil {
		return stage.Unhealthy(string(h.layer), "converter unavailable")
	}
	return stage.Healthy(string(h.layer))
}

func loadManifest(layerName string, names Names, logger *slog.Logger) (fanout.Manifest, error) {
	if err := stage.RequireFile(layerName, "manifest", names.Manifest()); err != nil {
		return fanout.Manifest{}, err
	}
	manifest, err := fanout.LoadManifest(names.Manifest())
	if err != nil {
		return fanout.Manifest{}, err
	}
	for _, rejected := range manifest.Rejected {
		logging.WarnWithContext(logger, "manifest entry rejected", "manifest_rejected",
			logging.String("entry", rejected),
			logging.String(logging.FieldErrorHint, "manifest paths must be relative, inside the project, and have an extension"),
			logging.String(logging.FieldImpact, "entry not generated"),
		)
	}
	if len(manifest.Paths) == 0 {
		return manifest, services.Wrap(services.ErrValidation, layerName, "load manifest",
			"Manifest "+artifact.Rel(names.layout.Root, names.Manifest())+" lists no files", nil)
	}
	return manifest, nil
}

func targetReport(root, target string, res converter.Result, err error) stage.TargetReport {
	return stage.TargetReport{
		Target:   artifact.Rel(root, target),
		Decision: string(res.Decision),
		Reason:   res.Reason,
		Score:    res.Score,
		Calls:    res.Calls,
		Model:    res.Model,
		Err:      err,
	}
}

func requestPaths(rc *runctx.RunContext, names Names) (string, string, string) {
	return rc.Input, names.Request(), ""
}

func definitionPaths(_ *runctx.RunContext, names Names) (string, string, string) {
	return names.Request(), names.Definition(), ""
}

func structurePaths(_ *runctx.RunContext, names Names) (string, string, string) {
	return names.Definition(), names.Manifest(), names.Request()
}

func requirementSets(names Names, manifest fanout.Manifest) []fanout.Set {
	sets := make([]fanout.Set, 0, len(manifest.Paths))
	for _, p := range manifest.Paths {
		sets = append(sets, fanout.Set{
			Sources: []string{names.Definition()},
			Target:  names.Requirement(p),
			Context: names.Manifest(),
		})
	}
	return sets
}

func codeSets(names Names, manifest fanout.Manifest) []fanout.Set {
	sets := make([]fanout.Set, 0, len(manifest.Paths))
	for _, p := range manifest.Paths {
		sets = append(sets, fanout.Set{
			Sources: []string{names.Requirement(p)},
			Target:  names.Code(p),
			Context: names.Manifest(),
		})
	}
	return sets
}

// codebaseSets groups generated files by directory; files that were never
// generated are left out.
func codebaseSets(names Names, manifest fanout.Manifest) []fanout.Set {
	sets := make([]fanout.Set, 0, len(manifest.Paths))
	for _, p := range manifest.Paths {
		code := names.Code(p)
		if _, err := os.Stat(code); errors.Is(err, os.ErrNotExist) {
			continue
		}
		sets = append(sets, fanout.Set{
			Sources: []string{code},
			Target:  names.InfoStructure(p),
			Context: names.Manifest(),
		})
	}
	return sets
}
