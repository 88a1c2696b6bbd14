package layer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Layer is one named pipeline stage. Its level is encoded in the numeric
// prefix of the name, so "5_1_x" sits between "5_x" and "6_x".
type Layer string

const (
	RequestGen       Layer = "1_request_gen"
	RequirementGen   Layer = "2_requirement_gen"
	InfoStructureGen Layer = "3_info_structure_gen"
	FileRequirement  Layer = "4_requirement_gen"
	CodeGen          Layer = "5_code_gen"
	CodebaseGen      Layer = "6_codebase_gen"
	CodeFix          Layer = "7_code_fix"
	CleanUp          Layer = "8_clean_up"
)

// Kind describes how a layer produces its targets.
type Kind string

const (
	KindSingle     Kind = "single"
	KindFanout     Kind = "fanout"
	KindExecution  Kind = "execution"
	KindFilesystem Kind = "filesystem"
)

var catalogue = []Layer{
	RequestGen,
	RequirementGen,
	InfoStructureGen,
	FileRequirement,
	CodeGen,
	CodebaseGen,
	CodeFix,
	CleanUp,
}

var kinds = map[Layer]Kind{
	RequestGen:       KindSingle,
	RequirementGen:   KindSingle,
	InfoStructureGen: KindSingle,
	FileRequirement:  KindFanout,
	CodeGen:          KindFanout,
	CodebaseGen:      KindFanout,
	CodeFix:          KindExecution,
	CleanUp:          KindFilesystem,
}

// All returns every known layer ordered by level.
func All() []Layer {
	out := append([]Layer(nil), catalogue...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level() < out[j].Level() })
	return out
}

// First returns the lowest-level layer.
func First() Layer {
	return All()[0]
}

// Last returns the terminal layer.
func Last() Layer {
	all := All()
	return all[len(all)-1]
}

// Level parses the numeric prefix of the layer name. Underscore separated
// digit groups after the first become decimal places. Names without a numeric
// prefix have level -1.
func (l Layer) Level() float64 {
	parts := strings.Split(string(l), "_")
	digits := make([]string, 0, 2)
	for _, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			break
		}
		digits = append(digits, part)
	}
	if len(digits) == 0 {
		return -1
	}
	text := digits[0]
	if len(digits) > 1 {
		text += "." + strings.Join(digits[1:], "")
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return -1
	}
	return value
}

// Next returns the lowest-level layer whose level is strictly greater than l.
// The terminal layer returns false.
func (l Layer) Next() (Layer, bool) {
	current := l.Level()
	var (
		best  Layer
		found bool
	)
	for _, candidate := range catalogue {
		level := candidate.Level()
		if level <= current {
			continue
		}
		if !found || level < best.Level() {
			best = candidate
			found = true
		}
	}
	return best, found
}

// IsTerminal reports whether l has no successor.
func (l Layer) IsTerminal() bool {
	_, ok := l.Next()
	return !ok
}

// Kind reports how the layer produces targets.
func (l Layer) Kind() Kind {
	if kind, ok := kinds[l]; ok {
		return kind
	}
	return KindSingle
}

// Valid reports whether l is part of the catalogue.
func (l Layer) Valid() bool {
	_, ok := kinds[l]
	return ok
}

// Label returns a human readable name, e.g. "Code Gen" for 5_code_gen.
func (l Layer) Label() string {
	name := string(l)
	parts := strings.Split(name, "_")
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") == "" {
			continue
		}
		words = append(words, part)
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func (l Layer) String() string {
	return string(l)
}

// Parse resolves a full layer name or a unique prefix such as "4_" or "4".
func Parse(value string) (Layer, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("layer: empty name")
	}
	candidate := Layer(value)
	if candidate.Valid() {
		return candidate, nil
	}
	prefix := value
	if strings.TrimLeft(prefix, "0123456789") == "" {
		prefix += "_"
	}
	var matches []Layer
	for _, l := range catalogue {
		if strings.HasPrefix(string(l), prefix) {
			matches = append(matches, l)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("layer: unknown layer %q", value)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("layer: prefix %q is ambiguous (%d matches)", value, len(matches))
	}
}
