package logs

import (
	"strings"

	"layerforge/internal/logging"
)

// Filter keeps lines that belong to a run and/or a layer. A zero Filter
// keeps everything.
type Filter struct {
	// RunID may be a prefix of the full run id.
	RunID string
	Layer string
}

// Match reports whether line satisfies every set criterion.
func (f Filter) Match(line string) bool {
	if f.RunID != "" && !hasField(line, logging.FieldRunID, f.RunID) {
		return false
	}
	if f.Layer != "" && !hasField(line, logging.FieldLayer, f.Layer) && !strings.Contains(line, "["+f.Layer+"]") {
		return false
	}
	return true
}

// hasField matches key=value in console lines and "key":"value in JSON lines.
func hasField(line, key, value string) bool {
	return strings.Contains(line, key+"="+value) || strings.Contains(line, `"`+key+`":"`+value)
}
