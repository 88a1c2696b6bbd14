package prompt

import "strings"

// Fix asks for a corrected program given the failing run's stderr.
func Fix(path, code, stderr string) string {
	var b strings.Builder
	b.WriteString("Fix the program below so that it runs without errors. " +
		"Keep its behavior and structure. Output only the complete corrected file.\n\n")
	section(&b, "File", path)
	section(&b, "Program", code)
	section(&b, "Error output", tail(stderr))
	return b.String()
}

// Reason asks for an explanation of a failure that repeated fixes did not
// resolve.
func Reason(path, code, stderr string) string {
	var b strings.Builder
	b.WriteString("Explain why the program below keeps failing. Earlier attempts to fix it did not work. " +
		"Identify the root cause and describe the change that resolves it. Do not output the program.\n\n")
	section(&b, "File", path)
	section(&b, "Program", code)
	section(&b, "Error output", tail(stderr))
	return b.String()
}

// FixWithReason asks for a corrected program guided by a failure analysis.
func FixWithReason(path, code, stderr, reasoning string) string {
	var b strings.Builder
	b.WriteString("Fix the program below using the failure analysis. " +
		"Output only the complete corrected file.\n\n")
	section(&b, "File", path)
	section(&b, "Program", code)
	section(&b, "Error output", tail(stderr))
	section(&b, "Failure analysis", reasoning)
	return b.String()
}

const maxErrorChars = 4000

// tail keeps the end of long error output, where tracebacks put the cause.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorChars {
		return s
	}
	return "..." + s[len(s)-maxErrorChars:]
}
