package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"layerforge/internal/config"
	"layerforge/internal/deps"
	"layerforge/internal/services/anthropic"
	"layerforge/internal/services/llm"
)

// routeCheckTimeout bounds a live route check.
const routeCheckTimeout = 30 * time.Second

// CheckRoute verifies that a route has an API key and, when live is set,
// that the provider answers a single attempt within 30 seconds.
func CheckRoute(ctx context.Context, route config.Route, live bool) Result {
	name := "Route " + route.Name
	if strings.TrimSpace(route.APIKey) == "" {
		hint := "API key missing"
		if defaults, ok := config.LookupProvider(route.Provider); ok {
			hint = fmt.Sprintf("API key missing (set %s)", defaults.EnvKey)
		}
		return Result{Name: name, Detail: hint}
	}
	if !live {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s %s (key configured)", route.Provider, route.Model)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, routeCheckTimeout)
	defer cancel()

	var err error
	switch route.Provider {
	case "anthropic":
		err = checkAnthropic(checkCtx, route)
	default:
		client := llm.NewClient(llm.Config{
			APIKey:  route.APIKey,
			BaseURL: route.BaseURL,
			Model:   route.Model,
			Title:   "layerforge",
		}, llm.WithRetryMaxAttempts(1))
		err = client.HealthCheck(checkCtx)
	}
	if err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s %s (API reachable)", route.Provider, route.Model)}
}

func checkAnthropic(ctx context.Context, route config.Route) error {
	client, err := anthropic.NewFromAPIKey(route.APIKey, route.BaseURL, route.Model)
	if err != nil {
		return err
	}
	_, err = client.Complete(ctx, llm.Request{Prompt: "Reply with OK.", MaxTokens: 8})
	return err
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGrimoireDirectory passes when the directory is absent, since the
// embedded templates cover every role. A present directory must be readable.
func CheckGrimoireDirectory(path string) Result {
	const name = "Grimoire directory"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "not configured (embedded templates)"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent, embedded templates)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// InterpreterResults converts dependency statuses into results. A missing
// interpreter only disables fixing for its extension, so it still passes.
func InterpreterResults(statuses []deps.Status) []Result {
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		name := "Interpreter " + status.Command
		if status.Ext != "" {
			name += " (" + status.Ext + ")"
		}
		switch {
		case status.Available:
			results = append(results, Result{Name: name, Passed: true, Detail: status.Path})
		case status.Optional:
			results = append(results, Result{Name: name, Passed: true, Detail: status.Detail + "; matching files are skipped"})
		default:
			results = append(results, Result{Name: name, Detail: status.Detail})
		}
	}
	return results
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
