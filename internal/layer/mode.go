package layer

import (
	"fmt"
	"strings"
)

// Mode controls whether the raw user prompt is folded into a layer's work.
type Mode string

const (
	ModeGrimoireOnly      Mode = "grimoire-only"
	ModeGrimoireAndPrompt Mode = "grimoire-and-prompt"
	ModePromptOnly        Mode = "prompt-only"
	ModeSearchGrimoire    Mode = "search-grimoire"
	ModeLegacySingleShot  Mode = "legacy-single-shot"
)

var modes = []Mode{
	ModeGrimoireOnly,
	ModeGrimoireAndPrompt,
	ModePromptOnly,
	ModeSearchGrimoire,
	ModeLegacySingleShot,
}

// Modes lists every supported mode.
func Modes() []Mode {
	return append([]Mode(nil), modes...)
}

// ParseMode accepts a mode name, case-insensitively, with '_' or '-' separators.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-")
	if normalized == "" {
		return ModeGrimoireAndPrompt, nil
	}
	for _, m := range modes {
		if string(m) == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("mode: unsupported value %q", value)
}

// FoldsPrompt reports whether the raw user prompt is part of the composed prompt.
func (m Mode) FoldsPrompt() bool {
	switch m {
	case ModeGrimoireAndPrompt, ModePromptOnly, ModeSearchGrimoire, ModeLegacySingleShot:
		return true
	default:
		return false
	}
}

// UsesGrimoire reports whether the grimoire body is part of the composed prompt.
func (m Mode) UsesGrimoire() bool {
	return m != ModePromptOnly
}

// SingleShot reports whether the orchestrator stops after one layer.
func (m Mode) SingleShot() bool {
	return m == ModeLegacySingleShot
}

func (m Mode) String() string {
	return string(m)
}
