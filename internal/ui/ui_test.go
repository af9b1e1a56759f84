package ui

import (
	"bytes"
	"os"
	"testing"
)

func TestRenderColors(t *testing.T) {
	t.Cleanup(func() { noColor = false })
	noColor = false

	for _, tc := range []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"Accent", RenderAccent, "\x1b[38;5;74mkey\x1b[0m"},
		{"Muted", RenderMuted, "\x1b[38;5;245mkey\x1b[0m"},
		{"Command", RenderCommand, "\x1b[38;5;250mkey\x1b[0m"},
		{"Warn", RenderWarn, "\x1b[38;5;214mkey\x1b[0m"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn("key"); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestForceNoColor(t *testing.T) {
	t.Cleanup(func() { noColor = false })
	noColor = false

	ForceNoColor()
	if ColorEnabled() {
		t.Fatal("ColorEnabled() = true after ForceNoColor")
	}
	for _, fn := range []func(string) string{RenderAccent, RenderMuted, RenderCommand, RenderWarn} {
		if got := fn("plain"); got != "plain" {
			t.Errorf("got %q, want plain text", got)
		}
	}
}

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"NoColor", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
		{"Forced", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "1"}, true},
		{"Disabled", map[string]string{"NO_COLOR": "", "CLICOLOR_FORCE": "", "CLICOLOR": "0"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if got := ShouldUseColor(); got != tc.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsColorTerminal_NonTerminal(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("CLICOLOR", "")

	var buf bytes.Buffer
	if IsColorTerminal(&buf) {
		t.Error("a buffer is not a terminal")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsColorTerminal(f) {
		t.Error("a regular file is not a terminal")
	}

	t.Setenv("CLICOLOR_FORCE", " 1 ")
	if !IsColorTerminal(&buf) {
		t.Error("CLICOLOR_FORCE=1 should force color")
	}
}
