package autofix

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"layerforge/internal/artifact"
	"layerforge/internal/config"
	"layerforge/internal/fileutil"
	"layerforge/internal/logging"
	"layerforge/internal/prompt"
	"layerforge/internal/runctx"
	"layerforge/internal/services"
	"layerforge/internal/services/llm"
	"layerforge/internal/textutil"
)

// Completer is the router surface the fixer needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Status is the final state of one program.
type Status string

const (
	StatusPassed     Status = "passed"
	StatusFixed      Status = "fixed"
	StatusUnresolved Status = "unresolved"
	StatusSkipped    Status = "skipped"
)

// Settings bounds the repair loop.
type Settings struct {
	Timeout           time.Duration
	MaxFixAttempts    int
	MaxReasonAttempts int
	MaxTokens         int
	Temperature       float64
	Interpreters      map[string]string
}

// SettingsFromConfig maps the autofix and generation sections onto Settings.
func SettingsFromConfig(fix config.Autofix, gen config.Generation) Settings {
	interpreters := make(map[string]string, len(fix.Interpreters))
	for ext, bin := range fix.Interpreters {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || strings.TrimSpace(bin) == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		interpreters[ext] = strings.TrimSpace(bin)
	}
	return Settings{
		Timeout:           time.Duration(fix.TimeoutSeconds) * time.Second,
		MaxFixAttempts:    max(0, fix.MaxFixAttempts),
		MaxReasonAttempts: max(0, fix.MaxReasonAttempts),
		MaxTokens:         gen.MaxTokens,
		Temperature:       gen.Temperature,
		Interpreters:      interpreters,
	}
}

// Outcome reports what happened to one program.
type Outcome struct {
	Path     string
	Status   Status
	Attempts int
	Calls    int
	Stderr   string
}

// Tag is the history entry for the outcome.
func (o Outcome) Tag(root string) string {
	rel := artifact.Rel(root, o.Path)
	switch o.Status {
	case StatusFixed:
		return fmt.Sprintf("fixed(%d attempts): %s", o.Attempts, rel)
	case StatusUnresolved:
		return fmt.Sprintf("unresolved(%d attempts): %s", o.Attempts, rel)
	case StatusSkipped:
		return "skip(no interpreter): " + rel
	default:
		return "passed: " + rel
	}
}

// Fixer runs generated programs and repairs failures with the models named
// in the run context.
type Fixer struct {
	llm      Completer
	runner   Runner
	settings Settings
	logger   *slog.Logger
}

// Option customizes a Fixer.
type Option func(*Fixer)

// WithRunner replaces the process runner.
func WithRunner(runner Runner) Option {
	return func(f *Fixer) {
		if runner != nil {
			f.runner = runner
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fixer) {
		f.logger = logging.NewComponentLogger(logger, "autofix")
	}
}

// New builds a fixer.
func New(completer Completer, settings Settings, opts ...Option) *Fixer {
	f := &Fixer{
		llm:      completer,
		runner:   CommandRunner{Timeout: settings.Timeout},
		settings: settings,
		logger:   logging.NewComponentLogger(nil, "autofix"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Interpreter returns the configured interpreter for path's extension.
func (f *Fixer) Interpreter(path string) (string, bool) {
	bin, ok := f.settings.Interpreters[strings.ToLower(filepath.Ext(path))]
	return bin, ok
}

// Interpreters lists the configured interpreter binaries.
func (f *Fixer) Interpreters() map[string]string {
	return f.settings.Interpreters
}

// Fix runs path and repairs it until it passes or the attempt budgets are
// spent. Provider and process start failures are returned; a program that
// keeps failing is StatusUnresolved.
func (f *Fixer) Fix(ctx context.Context, rc *runctx.RunContext, path string) (Outcome, error) {
	out := Outcome{Path: path}
	interpreter, ok := f.Interpreter(path)
	if !ok {
		out.Status = StatusSkipped
		return out, nil
	}
	logger := logging.WithContext(services.WithTarget(ctx, filepath.Base(path)), f.logger)

	result, err := f.runner.Run(ctx, filepath.Dir(path), interpreter, path)
	if err != nil {
		return out, err
	}
	if result.Passed() {
		out.Status = StatusPassed
		return out, nil
	}
	logger.Info("generated program failed",
		logging.String("interpreter", interpreter),
		logging.Int("exit_code", result.ExitCode),
		logging.Bool("timed_out", result.TimedOut),
	)

	for i := 0; i < f.settings.MaxFixAttempts; i++ {
		out.Attempts++
		code, err := readProgram(path)
		if err != nil {
			return out, err
		}
		text, err := f.complete(ctx, &out, rc.Models.Main, prompt.Fix(filepath.Base(path), code, result.Stderr))
		if err != nil {
			return out, err
		}
		if result, err = f.rewriteAndRun(ctx, path, interpreter, text, result); err != nil {
			return out, err
		}
		if result.Passed() {
			return f.fixed(logger, out), nil
		}
	}

	for i := 0; i < f.settings.MaxReasonAttempts; i++ {
		out.Attempts++
		code, err := readProgram(path)
		if err != nil {
			return out, err
		}
		name := filepath.Base(path)
		reasoning, err := f.complete(ctx, &out, smartModel(rc), prompt.Reason(name, code, result.Stderr))
		if err != nil {
			return out, err
		}
		text, err := f.complete(ctx, &out, rc.Models.Main, prompt.FixWithReason(name, code, result.Stderr, reasoning))
		if err != nil {
			return out, err
		}
		if result, err = f.rewriteAndRun(ctx, path, interpreter, text, result); err != nil {
			return out, err
		}
		if result.Passed() {
			return f.fixed(logger, out), nil
		}
	}

	out.Status = StatusUnresolved
	out.Stderr = strings.TrimSpace(result.Stderr)
	logging.WarnWithContext(logger, "generated program still failing", "autofix_unresolved",
		logging.Int("attempts", out.Attempts),
		logging.String(logging.FieldErrorHint, "inspect the program and rerun the 7_code_fix layer"),
		logging.String(logging.FieldImpact, "program left in its last attempted state"),
	)
	return out, nil
}

func (f *Fixer) fixed(logger *slog.Logger, out Outcome) Outcome {
	out.Status = StatusFixed
	logger.Info("generated program fixed", logging.Int("attempts", out.Attempts), logging.Int("calls", out.Calls))
	return out
}

func (f *Fixer) complete(ctx context.Context, out *Outcome, model, text string) (string, error) {
	out.Calls++
	completion, err := f.llm.Complete(ctx, llm.Request{
		Model:       model,
		Prompt:      text,
		MaxTokens:   f.settings.MaxTokens,
		Temperature: f.settings.Temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Text), nil
}

// rewriteAndRun writes the proposed program, keeping its HASH trailer, and
// runs it again. An empty proposal keeps the previous program and result.
func (f *Fixer) rewriteAndRun(ctx context.Context, path, interpreter, text string, previous Execution) (Execution, error) {
	code := artifact.StripHashTrailer(textutil.StripCodeFence(text))
	if strings.TrimSpace(code) == "" {
		return previous, nil
	}
	if err := writeProgram(path, code); err != nil {
		return previous, err
	}
	return f.runner.Run(ctx, filepath.Dir(path), interpreter, path)
}

func readProgram(path string) (string, error) {
	content, ok, err := artifact.ReadText(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "autofix", "read program", path+" no longer exists", nil)
	}
	return artifact.StripHashTrailer(content), nil
}

func writeProgram(path, code string) error {
	current, _, err := artifact.ReadText(path)
	if err != nil {
		return err
	}
	if sha, ok := artifact.ReadHashTrailer(current); ok {
		return artifact.WriteTarget(path, code, sha)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(strings.TrimRight(code, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write program %s: %w", path, err)
	}
	return nil
}

func smartModel(rc *runctx.RunContext) string {
	if strings.TrimSpace(rc.Models.Smart) != "" {
		return rc.Models.Smart
	}
	return rc.Models.Main
}
