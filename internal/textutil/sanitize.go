package textutil

import (
	"path/filepath"
	"strings"
)

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// CanonicalName derives the run name from an input file path or inline text.
// File inputs use their stem; text is truncated to its first words.
func CanonicalName(input string, isFile bool) string {
	input = strings.TrimSpace(input)
	if isFile {
		base := filepath.Base(input)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		for _, prefix := range []string{"request_", "def_", "structure_", "input_"} {
			base = strings.TrimPrefix(base, prefix)
		}
		return SanitizeToken(base)
	}
	words := strings.Fields(input)
	if len(words) > 4 {
		words = words[:4]
	}
	return collapse(SanitizeToken(strings.Join(words, "_")))
}

// StripCodeFence returns the body of a response that is a single fenced
// code block, and the trimmed response otherwise.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	body := trimmed[3 : len(trimmed)-3]
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return strings.TrimSpace(body)
	}
	// The fence's first line is a language tag.
	if strings.Contains(body[nl+1:], "```") {
		return trimmed
	}
	return strings.Trim(body[nl+1:], "\n")
}

func collapse(token string) string {
	for strings.Contains(token, "__") {
		token = strings.ReplaceAll(token, "__", "_")
	}
	return token
}
