package agent

import (
	"encoding/json"
	"strings"
	"unicode"
)

// decodeModelJSON parses a response that was asked for JSON. Models
// decorate their output, so after a direct parse this peels a fenced
// code block and then the outermost object or array slice. The bool is
// false when nothing parses.
func decodeModelJSON(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}

	if v, ok := tryUnmarshal(trimmed); ok {
		return v, true
	}
	if inner, ok := fencedBlock(trimmed); ok {
		if v, ok := tryUnmarshal(inner); ok {
			return v, true
		}
	}
	if inner, ok := outermost(trimmed, '{', '}'); ok {
		if v, ok := tryUnmarshal(inner); ok {
			return v, true
		}
	}
	if inner, ok := outermost(trimmed, '[', ']'); ok {
		if v, ok := tryUnmarshal(inner); ok {
			return v, true
		}
	}
	return nil, false
}

func tryUnmarshal(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// fencedBlock returns the body of the first ``` fence, tolerating a
// language tag on the opening line.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isFenceTag(rest[:nl]) {
		rest = rest[nl+1:]
	}

	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// isFenceTag reports whether the text after an opening fence is a
// language tag rather than content starting on the same line.
func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// outermost slices from the first open byte to the last close byte.
func outermost(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
