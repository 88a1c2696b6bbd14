// Package grimoire resolves the Markdown prompt templates that shape each
// layer's output. Compiler grimoires receive the goal prompt through a
// "{prompt}" slot, formatters describe the output format, and architects
// drive code generation. Templates may start with a YAML front matter block
// carrying a description and role.
package grimoire
