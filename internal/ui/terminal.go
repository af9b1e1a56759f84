package ui

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether ANSI colors should be written to stdout.
func ShouldUseColor() bool {
	return IsColorTerminal(os.Stdout)
}

// IsColorTerminal reports whether w should receive ANSI colors.
// NO_COLOR (https://no-color.org) wins over everything, CLICOLOR_FORCE=1
// forces color for pipes and CLICOLOR=0 turns it off. Otherwise only a
// terminal gets color.
func IsColorTerminal(w io.Writer) bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case envValue("CLICOLOR_FORCE") == "1":
		return true
	case envValue("CLICOLOR") == "0":
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

func envValue(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
