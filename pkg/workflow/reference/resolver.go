// Package reference implements the deterministic $-reference resolver.
//
// A value handed to Resolve is either a whole-value reference
// ("$state.user.name"), a template string with embedded segments
// ("hi {{$state.user.name}}"), a container resolved element-wise, or a
// scalar returned unchanged. Resolution is pure: no side effects, equal
// inputs give equal outputs within a run.
package reference

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tombee/baton/pkg/workflow"
)

// scopeNames matches $-prefixed scope references in expression source.
var scopeNames = regexp.MustCompile(`\$(state|cache|artifacts|event|run|paths|loops|item|row|index)\b`)

// BareScopes rewrites $scope references in expression source to the
// bare names the expression environment exposes, so authors can keep
// one reference syntax across logic fields and expressions.
func BareScopes(src string) string {
	return scopeNames.ReplaceAllString(src, "$1")
}

// Resolve dereferences v against ctx. Strings go through reference and
// template resolution; maps and slices are resolved element-wise with
// structure preserved; everything else is returned unchanged.
func Resolve(v any, ctx *workflow.Context) any {
	switch tv := v.(type) {
	case string:
		return resolveString(tv, ctx)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = Resolve(e, ctx)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Resolve(e, ctx)
		}
		return out
	default:
		return v
	}
}

// ResolveMap resolves every value of a logic map. Convenience for
// handlers, which receive their configuration as map[string]any.
func ResolveMap(logic map[string]any, ctx *workflow.Context) map[string]any {
	out := make(map[string]any, len(logic))
	for k, v := range logic {
		out[k] = Resolve(v, ctx)
	}
	return out
}

func resolveString(s string, ctx *workflow.Context) any {
	if path, ok := parseReference(s); ok {
		val, scopeKnown := deref(path, ctx)
		if !scopeKnown {
			// Unknown scope: hand the string back untouched.
			return s
		}
		return val
	}
	if strings.Contains(s, "{{") {
		return Interpolate(s, ctx)
	}
	return s
}

// Interpolate replaces each {{expr}} segment and always returns a
// string. Missing values render as the empty string; non-scalar values
// render as compact JSON.
func Interpolate(s string, ctx *workflow.Context) string {
	var b strings.Builder
	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close += open

		b.WriteString(rest[:open])
		inner := strings.TrimSpace(rest[open+2 : close])
		b.WriteString(Format(resolveSegment(inner, ctx)))
		rest = rest[close+2:]
	}
}

// resolveSegment resolves the inside of one {{ }} segment. References
// dereference; anything else is kept literally.
func resolveSegment(inner string, ctx *workflow.Context) any {
	if path, ok := parseReference(inner); ok {
		val, scopeKnown := deref(path, ctx)
		if !scopeKnown {
			return inner
		}
		return val
	}
	return inner
}

// Format renders a resolved value as the string form state carries:
// nil as empty, scalars bare, containers as compact JSON.
func Format(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		// JSON numbers arrive as float64; render integral values bare.
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// pathSegment is one step of a parsed reference: a key lookup or an
// integer index.
type pathSegment struct {
	key   string
	index int
	isIdx bool
}

type refPath struct {
	scope    string
	segments []pathSegment
}

// parseReference parses the whole-value grammar $scope(.key|[idx])*.
// Returns ok=false when s is not a reference at all (no leading $, or
// trailing characters outside the grammar).
func parseReference(s string) (refPath, bool) {
	if len(s) < 2 || s[0] != '$' {
		return refPath{}, false
	}
	rest := s[1:]

	scope, n := readIdent(rest)
	if n == 0 {
		return refPath{}, false
	}
	rest = rest[n:]

	p := refPath{scope: scope}
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			key, n := readIdent(rest[1:])
			if n == 0 {
				return refPath{}, false
			}
			p.segments = append(p.segments, pathSegment{key: key})
			rest = rest[1+n:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return refPath{}, false
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return refPath{}, false
			}
			p.segments = append(p.segments, pathSegment{index: idx, isIdx: true})
			rest = rest[end+1:]
		default:
			return refPath{}, false
		}
	}
	return p, true
}

func readIdent(s string) (string, int) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			i++
			continue
		}
		break
	}
	return s[:i], i
}

// deref resolves a parsed path. The second return reports whether the
// scope name is known; unknown scopes leave the original string in
// place, while known scopes with missing paths resolve to nil.
func deref(p refPath, ctx *workflow.Context) (any, bool) {
	var root any
	switch p.scope {
	case "state":
		root = mapAny(ctx.State)
	case "cache":
		root = mapAny(ctx.Cache)
	case "secrets", "keys":
		root = secretsAny(ctx.Secrets)
	case "event":
		root = mapAny(ctx.Event)
	case "run":
		root = ctx.Run.AsMap()
	case "artifacts":
		root = artifactsAny(ctx.Artifacts)
	case "loops":
		root = loopsAny(ctx.Loops)
	case "paths":
		root = pathsAny(ctx.Paths)
	case "block":
		root = blockAny(ctx)
	case "item", "row":
		root = loopItem(ctx)
	case "index":
		root = loopIndex(ctx)
	default:
		return nil, false
	}
	return walk(root, p.segments), true
}

func mapAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func secretsAny(m map[string]string) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func pathsAny(m map[string]string) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func loopsAny(loops map[string]workflow.LoopState) any {
	out := make(map[string]any, len(loops))
	for name, s := range loops {
		entry := map[string]any{"index": s.Index}
		if s.Artifact != nil {
			entry["artifact"] = artifactAny(*s.Artifact)
		}
		out[name] = entry
	}
	return out
}

func artifactsAny(artifacts []workflow.Artifact) any {
	out := make([]any, len(artifacts))
	for i, a := range artifacts {
		out[i] = artifactAny(a)
	}
	return out
}

func artifactAny(a workflow.Artifact) map[string]any {
	m := map[string]any{
		"id":         a.ID,
		"runId":      a.RunID,
		"workflowId": a.WorkflowID,
		"type":       string(a.Type),
		"name":       a.Name,
	}
	if a.FilePath != "" {
		m["filePath"] = a.FilePath
	}
	if a.FileURL != "" {
		m["fileUrl"] = a.FileURL
	}
	if a.FileSize > 0 {
		m["fileSize"] = a.FileSize
	}
	if a.MimeType != "" {
		m["mimeType"] = a.MimeType
	}
	if a.BlockID != "" {
		m["blockId"] = a.BlockID
	}
	return m
}

func blockAny(ctx *workflow.Context) any {
	if ctx.Run.BlockID == "" {
		return nil
	}
	return map[string]any{
		"id":   ctx.Run.BlockID,
		"name": ctx.Run.BlockName,
		"type": string(ctx.Run.BlockType),
	}
}

func loopItem(ctx *workflow.Context) any {
	if _, s, ok := ctx.InnermostLoop(); ok && s.Artifact != nil {
		return artifactAny(*s.Artifact)
	}
	return nil
}

func loopIndex(ctx *workflow.Context) any {
	if _, s, ok := ctx.InnermostLoop(); ok {
		return s.Index
	}
	return nil
}

// walk follows segments into the value. Missing keys, out-of-range
// indices and mismatched shapes all resolve to nil.
func walk(v any, segments []pathSegment) any {
	for _, seg := range segments {
		if v == nil {
			return nil
		}
		if seg.isIdx {
			list, ok := v.([]any)
			if !ok || seg.index < 0 || seg.index >= len(list) {
				return nil
			}
			v = list[seg.index]
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v, ok = m[seg.key]
		if !ok {
			return nil
		}
	}
	return v
}
