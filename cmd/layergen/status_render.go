package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"layerforge/internal/services"
)

type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneError
)

var toneStyles = map[tone]struct{ label, color string }{
	toneInfo:  {"INFO", "\x1b[34m"},
	toneOK:    {"OK", "\x1b[32m"},
	toneWarn:  {"WARN", "\x1b[33m"},
	toneError: {"ERROR", "\x1b[31m"},
}

const ansiReset = "\x1b[0m"

// console prints labelled status lines, colored only on a terminal.
type console struct {
	out   io.Writer
	color bool
	width int
}

func newConsole(out io.Writer) *console {
	return &console{out: out, color: isTerminal(out), width: 28}
}

func (c *console) paint(t tone, s string) string {
	if !c.color {
		return s
	}
	return toneStyles[t].color + s + ansiReset
}

func (c *console) header(title string) {
	line := "== " + strings.TrimSpace(title) + " =="
	fmt.Fprintln(c.out, c.paint(toneInfo, line))
	fmt.Fprintln(c.out, c.paint(toneInfo, strings.Repeat("-", len(line))))
}

// status prints "  label:   [OK] detail".
func (c *console) status(label string, t tone, detail string) {
	badge := "[" + toneStyles[t].label + "]"
	if detail != "" {
		badge += " " + detail
	}
	fmt.Fprintln(c.out, c.paint(t, fmt.Sprintf("  %-*s %s", c.width, label+":", badge)))
}

func runStatusTone(status services.RunStatus) tone {
	switch status {
	case services.RunStatusCompleted:
		return toneOK
	case services.RunStatusCanceled:
		return toneWarn
	case services.RunStatusFailed, services.RunStatusInvalid:
		return toneError
	default:
		return toneInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
