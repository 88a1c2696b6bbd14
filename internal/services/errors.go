package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// RunStatus is the terminal status persisted for a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusInvalid   RunStatus = "invalid"
	RunStatusCanceled  RunStatus = "canceled"
)

// Wrap builds an error message that includes layer context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, layer, operation, message string, err error) error {
	detail := buildDetail(layer, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a run error to the status the orchestrator should persist.
// Input and configuration problems are "invalid" because retrying without
// changes cannot succeed.
func FailureStatus(err error) RunStatus {
	switch {
	case err == nil:
		return RunStatusFailed
	case errors.Is(err, context.Canceled):
		return RunStatusCanceled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return RunStatusInvalid
	default:
		return RunStatusFailed
	}
}

func buildDetail(layer, operation, message string) string {
	parts := make([]string, 0, 3)
	if layer = strings.TrimSpace(layer); layer != "" {
		parts = append(parts, layer)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
