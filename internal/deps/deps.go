package deps

import (
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"
)

// Requirement is an external binary a run shells out to. Ext names the
// generated-file extension it executes, when it is an interpreter.
type Requirement struct {
	Command  string
	Ext      string
	Optional bool
}

// Status is a Requirement after a PATH lookup.
type Status struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement on PATH, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results[i] = lookup(req)
	}
	return results
}

func lookup(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Path = path
	status.Available = true
	return status
}

// InterpreterRequirements lists the autofix interpreters sorted by extension.
// All of them are optional: a missing one only disables fixing for its files.
func InterpreterRequirements(interpreters map[string]string) []Requirement {
	reqs := make([]Requirement, 0, len(interpreters))
	for _, ext := range slices.Sorted(maps.Keys(interpreters)) {
		reqs = append(reqs, Requirement{Command: interpreters[ext], Ext: ext, Optional: true})
	}
	return reqs
}
