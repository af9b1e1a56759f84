package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/ui"
)

// helpRule styles one capture group of every match of re.
type helpRule struct {
	re    *regexp.Regexp
	group int
	style func(string) string
}

// helpRules colorize Cobra's default help output, applied in order.
var helpRules = []helpRule{
	// Section headers such as "Documents:" or "Flags:".
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), 1, ui.RenderAccent},
	// Command names: two-space indent, a word, then the description.
	{regexp.MustCompile(`(?m)^  ([a-z][\w-]*)  `), 1, ui.RenderCommand},
	// Flag type annotations, e.g. "--limit int".
	{regexp.MustCompile(`--[\w-]+ (string|int|duration)\b`), 1, ui.RenderMuted},
	// Default values, e.g. (default "documents").
	{regexp.MustCompile(`(\(default [^)]*\))`), 1, ui.RenderMuted},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when stdout supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			loc := r.re.FindStringSubmatchIndex(match)
			start, end := loc[2*r.group], loc[2*r.group+1]
			if start < 0 {
				return match
			}
			return match[:start] + r.style(match[start:end]) + match[end:]
		})
	}
	return s
}
