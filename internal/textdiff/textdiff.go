package textdiff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Unified returns a zero-context unified diff between oldText and newText.
// Lines are compared after collapsing whitespace, and blank lines are ignored,
// so reformatting alone yields an empty diff.
func Unified(oldText, newText string) string {
	a, b := normalize(oldText), normalize(newText)
	if a == b {
		return ""
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var out strings.Builder
	h := hunk{}
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			h.flush(&out)
			oldLine += len(chunk)
			newLine += len(chunk)
		case diffmatchpatch.DiffDelete:
			h.open(oldLine, newLine)
			for _, line := range chunk {
				h.lines = append(h.lines, "-"+line)
			}
			h.oldCount += len(chunk)
			oldLine += len(chunk)
		case diffmatchpatch.DiffInsert:
			h.open(oldLine, newLine)
			for _, line := range chunk {
				h.lines = append(h.lines, "+"+line)
			}
			h.newCount += len(chunk)
			newLine += len(chunk)
		}
	}
	h.flush(&out)
	return out.String()
}

// Ratio is the size of diff relative to the new source. An empty source
// counts as a complete rewrite.
func Ratio(diff, newText string) float64 {
	if len(newText) == 0 {
		if diff == "" {
			return 0
		}
		return 1
	}
	return float64(len(diff)) / float64(len(newText))
}

type hunk struct {
	active             bool
	oldStart, newStart int
	oldCount, newCount int
	lines              []string
}

func (h *hunk) open(oldLine, newLine int) {
	if h.active {
		return
	}
	*h = hunk{active: true, oldStart: oldLine, newStart: newLine}
}

func (h *hunk) flush(out *strings.Builder) {
	if !h.active {
		return
	}
	oldStart, newStart := h.oldStart, h.newStart
	// A zero-length side points at the line before the change.
	if h.oldCount == 0 {
		oldStart--
	}
	if h.newCount == 0 {
		newStart--
	}
	fmt.Fprintf(out, "@@ -%d,%d +%d,%d @@\n", oldStart, h.oldCount, newStart, h.newCount)
	for _, line := range h.lines {
		out.WriteString(line)
		out.WriteByte('\n')
	}
	*h = hunk{}
}

func normalize(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		b.WriteString(strings.Join(fields, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
