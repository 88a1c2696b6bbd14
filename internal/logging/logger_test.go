package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"layerforge/internal/config"
	"layerforge/internal/logging"
	"layerforge/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "layerforge.log"))
	if !strings.Contains(content, "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerPrefixesLayerAndComponent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithLayer(context.Background(), "5_code_gen")
	ctx = services.WithTarget(ctx, "generated/app/main.py")
	componentLogger := logging.NewComponentLogger(logger, "converter")
	logging.WithContext(ctx, componentLogger).Info("decision made", logging.String("decision", "skip"))

	content := readLog(t, logPath)
	if !strings.Contains(content, "[5_code_gen] converter: decision made") {
		t.Fatalf("expected layer and component prefix, got %q", content)
	}
	if !strings.Contains(content, "target=generated/app/main.py") || !strings.Contains(content, "decision=skip") {
		t.Fatalf("expected attributes, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")
	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerEmitsStructuredFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "match rate unparsable", "match_rate_invalid")

	var payload map[string]any
	line := strings.TrimSpace(readLog(t, logPath))
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, line)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if payload[logging.FieldEventType] != "match_rate_invalid" {
		t.Fatalf("expected event type, got %v", payload[logging.FieldEventType])
	}
	if _, ok := payload[logging.FieldErrorHint]; !ok {
		t.Fatal("expected default error hint")
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestDecisionAttrs(t *testing.T) {
	attrs := logging.DecisionAttrs("regenerate", "full", "diff too large")
	if len(attrs) != 3 || attrs[0].Key != logging.FieldDecisionType || attrs[2].Value.String() != "diff too large" {
		t.Fatalf("unexpected decision attrs: %v", attrs)
	}
}
