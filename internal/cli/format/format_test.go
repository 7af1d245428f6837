package format

import (
	"strings"
	"testing"
)

func TestFormatDispatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  string
		want    string
		wantErr bool
	}{
		{"empty defaults to markdown", "plain body", "", "plain body", false},
		{"explicit markdown", "## heading", "markdown", "## heading", false},
		{"text passthrough", "as-is", "text", "as-is", false},
		{"json pretty-prints", `{"b":1,"a":2}`, "json", "{\n  \"a\": 2,\n  \"b\": 1\n}", false},
		{"code without tty passes through", "func main() {}", "code:go", "func main() {}", false},
		{"format is case-insensitive", "body", "TEXT", "body", false},
		{"unknown format errors", "body", "table", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.content, tt.format, false)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Format(%q) expected error, got %q", tt.format, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Format(%q) error = %v", tt.format, err)
			}
			if got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestMarkdownRendersForTerminal(t *testing.T) {
	got, err := Markdown("# Release notes\n\nShipped.", true)
	if err != nil {
		t.Fatalf("Markdown() error = %v", err)
	}
	if !strings.Contains(got, "Release notes") {
		t.Errorf("rendered output lost the heading text: %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("rendered output still contains ANSI escapes")
	}
}

func TestMarkdownPassthroughWhenPiped(t *testing.T) {
	src := "# Heading\n\n- item"
	got, err := Markdown(src, false)
	if err != nil {
		t.Fatalf("Markdown() error = %v", err)
	}
	if got != src {
		t.Errorf("piped markdown should pass through, got %q", got)
	}
}

func TestJSONRejectsInvalidInput(t *testing.T) {
	if _, err := JSON("{not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestCodeHighlightsForTerminal(t *testing.T) {
	src := "package main\n\nfunc main() {}\n"
	got, err := Code(src, "go", true)
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}
	if !strings.Contains(got, "func main") {
		t.Errorf("highlighted output lost the source text: %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("highlighted output still contains ANSI escapes")
	}
}

func TestCodeWithoutLanguagePassesThrough(t *testing.T) {
	got, err := Code("SELECT 1;", "", true)
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}
	if got != "SELECT 1;" {
		t.Errorf("Code() = %q, want passthrough", got)
	}
}

func TestSizeCapRejectsRunawayContent(t *testing.T) {
	huge := strings.Repeat("a", maxCodeSize+1)
	if _, err := Code(huge, "go", false); err == nil {
		t.Fatal("expected size error")
	}
	if _, err := Format(huge, "code:go", false); err == nil {
		t.Fatal("expected size error through Format")
	}
}

func TestStripANSI(t *testing.T) {
	if got := stripANSI("\x1b[31mred\x1b[0m text"); got != "red text" {
		t.Errorf("stripANSI = %q", got)
	}
}

func TestIsTTYRespectsEnvironment(t *testing.T) {
	t.Run("NO_COLOR disables formatting", func(t *testing.T) {
		t.Setenv("NO_COLOR", "1")
		t.Setenv("TERM", "xterm-256color")
		if IsTTY() {
			t.Error("IsTTY() should be false with NO_COLOR set")
		}
	})

	t.Run("dumb terminal disables formatting", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		t.Setenv("TERM", "dumb")
		if IsTTY() {
			t.Error("IsTTY() should be false for TERM=dumb")
		}
	})

	t.Run("unset terminal disables formatting", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		t.Setenv("TERM", "")
		if IsTTY() {
			t.Error("IsTTY() should be false with no TERM")
		}
	})
}
