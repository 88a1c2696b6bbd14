package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"layerforge/internal/artifact"
	"layerforge/internal/autofix"
	"layerforge/internal/cleanup"
	"layerforge/internal/config"
	"layerforge/internal/deps"
	"layerforge/internal/layer"
	"layerforge/internal/logging"
	"layerforge/internal/runctx"
	"layerforge/internal/stage"
)

// codeFixHandler runs the generated programs and repairs failures.
type codeFixHandler struct {
	fixer   *autofix.Fixer
	enabled bool
	layout  config.Layout
	logger  *slog.Logger
}

func (h *codeFixHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

func (h *codeFixHandler) Prepare(_ context.Context, rc *runctx.RunContext) error {
	if !h.enabled {
		return nil
	}
	_, err := loadManifest(string(layer.CodeFix), NewNames(h.layout, rc.Name), h.logger)
	return err
}

func (h *codeFixHandler) Execute(ctx context.Context, rc *runctx.RunContext) (stage.Report, error) {
	var report stage.Report
	if !h.enabled {
		rc.Record("skip(autofix disabled): " + string(layer.CodeFix))
		return report, nil
	}
	names := NewNames(h.layout, rc.Name)
	manifest, err := loadManifest(string(layer.CodeFix), names, h.logger)
	if err != nil {
		return report, err
	}
	for _, p := range manifest.Paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := names.Code(p)
		if _, ok := h.fixer.Interpreter(path); !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		out, err := h.fixer.Fix(ctx, rc, path)
		rc.Calls += out.Calls
		report.Targets = append(report.Targets, stage.TargetReport{
			Target:   artifact.Rel(h.layout.Root, path),
			Decision: string(out.Status),
			Reason:   fmt.Sprintf("%d attempts", out.Attempts),
			Calls:    out.Calls,
			Model:    rc.Models.Main,
			Err:      err,
		})
		if err != nil {
			return report, err
		}
		rc.Record(out.Tag(h.layout.Root))
	}
	return report, nil
}

func (h *codeFixHandler) HealthCheck(context.Context) stage.Health {
	name := string(layer.CodeFix)
	if !h.enabled {
		return stage.Healthy(name)
	}
	var missing []string
	for _, status := range deps.CheckBinaries(deps.InterpreterRequirements(h.fixer.Interpreters())) {
		if !status.Available {
			missing = append(missing, status.Detail)
		}
	}
	if len(missing) > 0 {
		return stage.Unhealthy(name, strings.Join(missing, "; "))
	}
	return stage.Healthy(name)
}

// cleanUpHandler prunes files the manifest no longer lists.
type cleanUpHandler struct {
	enabled bool
	dryRun  bool
	layout  config.Layout
	logger  *slog.Logger
}

func (h *cleanUpHandler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

func (h *cleanUpHandler) Prepare(_ context.Context, rc *runctx.RunContext) error {
	if !h.enabled {
		return nil
	}
	_, err := loadManifest(string(layer.CleanUp), NewNames(h.layout, rc.Name), h.logger)
	return err
}

func (h *cleanUpHandler) Execute(_ context.Context, rc *runctx.RunContext) (stage.Report, error) {
	var report stage.Report
	if !h.enabled {
		rc.Record("skip(cleanup disabled): " + string(layer.CleanUp))
		return report, nil
	}
	names := NewNames(h.layout, rc.Name)
	manifest, err := loadManifest(string(layer.CleanUp), names, h.logger)
	if err != nil {
		return report, err
	}
	result, err := cleanup.Prune(names.Project(), manifest.Paths, h.dryRun, h.logger)
	if err != nil {
		return report, err
	}
	decision := "removed"
	if result.DryRun {
		decision = "would-remove"
	}
	for _, rel := range result.Removed {
		report.Targets = append(report.Targets, stage.TargetReport{
			Target:   artifact.Rel(h.layout.Root, names.Code(rel)),
			Decision: decision,
			Reason:   "not in manifest",
		})
	}
	for _, e := range result.Errors {
		logging.WarnWithContext(h.logger, "clean-up could not remove path", "cleanup_failed",
			logging.String("path", e.Path),
			logging.Error(e.Err),
			logging.String(logging.FieldErrorHint, "check generated directory permissions"),
			logging.String(logging.FieldImpact, "stale file left in the project"),
		)
	}
	rc.Record(fmt.Sprintf("%s(%d files): %s", decision, len(result.Removed), artifact.Rel(h.layout.Root, names.Project())))
	return report, nil
}

func (h *cleanUpHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(layer.CleanUp))
}
