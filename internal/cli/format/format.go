// Package format renders block content for the terminal.
//
// Details pauses and other block-authored bodies pass through here
// before reaching the screen: markdown renders with glamour, code
// highlights with chroma, and everything is stripped of ANSI escapes
// afterwards so workflow content cannot inject terminal control
// sequences.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
)

// Size caps per format. Body content is resolved from workflow state,
// so a runaway value must fail before it is buffered for rendering.
const (
	maxMarkdownSize = 5 << 20
	maxJSONSize     = 10 << 20
	maxCodeSize     = 2 << 20
	maxTextSize     = 10 << 20
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes terminal escape sequences from rendered output.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

func checkSize(content string, limit int, format string) error {
	if len(content) > limit {
		return fmt.Errorf("content is %d bytes, over the %d byte limit for %s", len(content), limit, format)
	}
	return nil
}

// Format renders content according to its declared format: "markdown"
// (the default), "json", "code:<language>", or "text". Unknown formats
// are an error so a typo in a workflow file surfaces instead of
// silently printing raw text.
func Format(content, format string, isTTY bool) (string, error) {
	if format == "" {
		format = "markdown"
	}
	base, language, _ := strings.Cut(strings.ToLower(format), ":")

	switch base {
	case "markdown":
		return Markdown(content, isTTY)
	case "json":
		return JSON(content)
	case "code":
		return Code(content, language, isTTY)
	case "text":
		return Text(content)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// Markdown renders markdown with ANSI styling when the output is a
// terminal. Rendering failures fall back to the raw text: a details
// card with odd markdown should still reach the person reviewing it.
func Markdown(content string, isTTY bool) (string, error) {
	if err := checkSize(content, maxMarkdownSize, "markdown"); err != nil {
		return "", err
	}
	if !isTTY {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content, nil
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content, nil
	}
	return stripANSI(rendered), nil
}

// JSON pretty-prints a JSON document with two-space indentation.
// Invalid JSON is an error, not a passthrough, because the author
// declared the body to be JSON.
func JSON(content string) (string, error) {
	if err := checkSize(content, maxJSONSize, "json"); err != nil {
		return "", err
	}

	var obj any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	return string(formatted), nil
}

// Code applies syntax highlighting for the given language when the
// output is a terminal. An empty or unrecognized language renders the
// code untouched.
func Code(content, language string, isTTY bool) (string, error) {
	if err := checkSize(content, maxCodeSize, "code"); err != nil {
		return "", err
	}
	if !isTTY || language == "" {
		return content, nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, content, language, "terminal256", "monokai"); err != nil {
		return content, nil
	}
	return stripANSI(buf.String()), nil
}

// Text passes content through with only the size cap applied.
func Text(content string) (string, error) {
	if err := checkSize(content, maxTextSize, "text"); err != nil {
		return "", err
	}
	return content, nil
}
