package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"layerforge/internal/layer"
)

// Placeholder marks where compiler grimoires receive the goal prompt.
const Placeholder = "{prompt}"

const languagePlaceholder = "{language}"

var englishPattern = regexp.MustCompile(`^(english|en)\b`)

// Inputs carries the resolved pieces of one layer's final prompt.
type Inputs struct {
	Mode      layer.Mode
	Compiler  string
	Formatter string
	Raw       string
	Source    string
	Context   string
	Intent    string
	Language  string
}

// Goal builds the task description handed to the compiler grimoire.
func Goal(in Inputs) string {
	var b strings.Builder
	if in.Mode.FoldsPrompt() && strings.TrimSpace(in.Raw) != "" {
		section(&b, "Request", in.Raw)
	}
	if strings.TrimSpace(in.Source) != "" {
		section(&b, "Source", in.Source)
	}
	if strings.TrimSpace(in.Context) != "" {
		section(&b, "Context", in.Context)
	}
	if strings.TrimSpace(in.Intent) != "" {
		section(&b, "Eternal intent", in.Intent)
	}
	return strings.TrimSpace(b.String())
}

// Final composes the prompt sent for a full generation.
func Final(in Inputs) string {
	goal := Goal(in)
	formatter := Formatter(in.Formatter, in.Language)

	var body string
	switch {
	case !in.Mode.UsesGrimoire() || strings.TrimSpace(in.Compiler) == "":
		body = goal
	case strings.Contains(in.Compiler, Placeholder):
		body = strings.ReplaceAll(in.Compiler, Placeholder, goal)
	default:
		body = strings.TrimRight(in.Compiler, "\n") + "\n\n" + goal
	}
	if formatter != "" {
		body = strings.TrimRight(body, "\n") + "\n\n" + formatter
	}
	if lang := strings.TrimSpace(in.Language); lang != "" && englishPattern.MatchString(strings.ToLower(lang)) && formatter != "" {
		// English output is requested on both sides of the body.
		body = formatter + "\n\n" + body
	}
	return strings.TrimSpace(body) + "\n"
}

// Formatter fills the language slot of a formatter grimoire, appending an
// output-language directive when the template has no slot.
func Formatter(formatter, language string) string {
	language = strings.TrimSpace(language)
	if formatter == "" || language == "" {
		return strings.TrimSpace(formatter)
	}
	if strings.Contains(formatter, languagePlaceholder) {
		return strings.TrimSpace(strings.ReplaceAll(formatter, languagePlaceholder, language))
	}
	return strings.TrimSpace(formatter) + fmt.Sprintf(
		"\n\n## Output Language\n- You must write your entire response, including code blocks and diagrams, in %s.", language)
}

// MatchRate asks for a 0-100 score of how well the previous target still
// satisfies the current source.
func MatchRate(previousTarget, source, final string) string {
	var b strings.Builder
	b.WriteString(`You are reviewing a previously generated file against its updated source.
Score from 0 to 100 how well the previous target still satisfies the current source and instructions.
  0: unrelated, the target must be regenerated
 30: weak fit, regenerating is preferable
 80: good fit, patching the previous target is preferable
100: complete fit, no change required
Score low when the target contains diff or unified diff fragments, or when source and target do not correspond.
Answer with the integer only.

`)
	section(&b, "Previous target", previousTarget)
	section(&b, "Current source", source)
	if strings.TrimSpace(final) != "" {
		section(&b, "Current instructions", final)
	}
	return b.String()
}

// DiffOrder describes the change to carry into the target: the latest source
// plus the highlighted source diff.
func DiffOrder(source, sourceDiff string) string {
	var b strings.Builder
	section(&b, "Latest instructions", source)
	if strings.TrimSpace(sourceDiff) != "" {
		section(&b, "Important changes", sourceDiff)
	}
	return b.String()
}

// ProposeDiff asks for a unified diff that brings currentTarget in line with
// the diff order.
func ProposeDiff(currentTarget, diffOrder string) string {
	var b strings.Builder
	b.WriteString(`Prepare a change proposal for the target file.
1. Read the current target file.
2. Read the requested change.
3. Keep the existing content and prefer adding information over rewriting it.
4. Output only the parts of the target that must change, as a unified diff. Output nothing else.

`)
	section(&b, "Current target", currentTarget)
	section(&b, "Requested change", diffOrder)
	b.WriteString(`Output format reminder: unified diff, removed lines start with '-', added lines with '+',
with enough context lines to locate each hunk uniquely.

Example:
@@ -1,4 +1,4 @@
 line1
-line2
+line2 modified
 line3
`)
	return b.String()
}

// Apply asks for the final target after merging the proposed diff.
func Apply(currentTarget, diff string) string {
	var b strings.Builder
	section(&b, "Current target", currentTarget)
	b.WriteString("A change to the target above has been proposed as a unified diff. " +
		"Produce only the complete final content of the target after applying it, " +
		"with no leftover diff markers, renumbering lists where needed.\n\n")
	section(&b, "Proposed diff", diff)
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
}
