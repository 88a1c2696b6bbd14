package autofix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"layerforge/internal/services"
)

var commandContext = exec.CommandContext

// Execution captures one run of a generated program.
type Execution struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Passed reports whether the run exited cleanly.
func (e Execution) Passed() bool {
	return e.ExitCode == 0 && !e.TimedOut
}

// Runner executes path with interpreter from dir.
type Runner interface {
	Run(ctx context.Context, dir, interpreter, path string) (Execution, error)
}

// CommandRunner runs programs as child processes with a deadline.
type CommandRunner struct {
	Timeout time.Duration
}

// Run executes the program. A non-zero exit or a timeout is reported in the
// Execution; only a failure to start the interpreter is an error.
func (r CommandRunner) Run(ctx context.Context, dir, interpreter, path string) (Execution, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(runCtx, interpreter, path) //nolint:gosec
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	result := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stderr += fmt.Sprintf("\nprocess timed out after %s", r.Timeout)
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, services.Wrap(services.ErrExternalTool, "autofix", "execute",
		fmt.Sprintf("Cannot run %s with %s", path, interpreter), err)
}
