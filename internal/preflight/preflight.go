package preflight

import (
	"context"

	"layerforge/internal/config"
	"layerforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options tunes RunAll.
type Options struct {
	// Live sends one completion per route instead of only checking its key.
	Live bool
	// Route limits route checks to the named route.
	Route string
}

// RunAll executes all applicable preflight checks for the given config.
// Interpreter checks run only when autofix is enabled.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckGrimoireDirectory(cfg.Paths.GrimoireDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	switch {
	case opts.Route != "":
		route, ok := cfg.RouteByName(opts.Route)
		if !ok {
			results = append(results, Result{Name: "Route " + opts.Route, Detail: "route not configured"})
			break
		}
		results = append(results, CheckRoute(ctx, route, opts.Live))
	case len(cfg.LLM.Routes) == 0:
		results = append(results, Result{Name: "LLM routes", Detail: "no routes configured; set a provider API key such as ANTHROPIC_API_KEY"})
	default:
		for _, route := range cfg.LLM.Routes {
			results = append(results, CheckRoute(ctx, route, opts.Live))
		}
	}

	if cfg.Autofix.Enabled {
		statuses := deps.CheckBinaries(deps.InterpreterRequirements(cfg.Autofix.Interpreters))
		results = append(results, InterpreterResults(statuses)...)
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
