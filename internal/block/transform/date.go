package transform

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

type dateHandler struct{}

func (h *dateHandler) Type() workflow.BlockType { return workflow.BlockDate }

// namedLayouts lets authors pick a format without knowing Go's
// reference-time syntax. Anything else is treated as a raw layout.
var namedLayouts = map[string]string{
	"iso8601":  time.RFC3339,
	"rfc3339":  time.RFC3339,
	"date":     "2006-01-02",
	"time":     "15:04:05",
	"datetime": "2006-01-02 15:04:05",
}

func (h *dateHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, _ := block.GetString(logic, "date_operation")
	if op == "" {
		op = "now"
	}

	var (
		out any
		err error
	)
	switch op {
	case "now":
		out = h.format(time.Now().UTC(), logic)
	case "format":
		var t time.Time
		t, err = requireTime(logic, "date_value")
		if err == nil {
			out = h.format(t, logic)
		}
	case "parse":
		var t time.Time
		t, err = requireTime(logic, "date_value")
		if err == nil {
			out = t.UTC().Format(time.RFC3339)
		}
	case "add":
		out, err = h.add(logic)
	case "diff":
		out, err = h.diff(logic)
	default:
		return nil, &errors.ValidationError{
			Field:       "date_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of now, format, parse, add, diff",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

func (h *dateHandler) format(t time.Time, logic map[string]any) string {
	layout, ok := block.GetString(logic, "date_format")
	if !ok {
		return t.Format(time.RFC3339)
	}
	switch layout {
	case "unix":
		return strconv.FormatInt(t.Unix(), 10)
	case "unix_ms":
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	if named, ok := namedLayouts[layout]; ok {
		layout = named
	}
	return t.Format(layout)
}

func (h *dateHandler) add(logic map[string]any) (any, error) {
	t := time.Now().UTC()
	if _, ok := logic["date_value"]; ok {
		var err error
		t, err = requireTime(logic, "date_value")
		if err != nil {
			return nil, err
		}
	}
	spec, err := block.RequireString(logic, "date_duration")
	if err != nil {
		return nil, err
	}
	d, err := parseDuration(spec)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:       "date_duration",
			Message:     err.Error(),
			SuggestText: `use Go duration syntax with an optional day unit, e.g. "90m", "1d12h", "-2h"`,
		}
	}
	return h.format(t.Add(d), logic), nil
}

// diff returns date_value minus date_other in milliseconds.
func (h *dateHandler) diff(logic map[string]any) (any, error) {
	a, err := requireTime(logic, "date_value")
	if err != nil {
		return nil, err
	}
	b, err := requireTime(logic, "date_other")
	if err != nil {
		return nil, err
	}
	return a.Sub(b).Milliseconds(), nil
}

func requireTime(logic map[string]any, key string) (time.Time, error) {
	raw, ok := operand(logic, key)
	if !ok {
		return time.Time{}, &errors.ValidationError{
			Field:       key,
			Message:     "required field is missing",
			SuggestText: fmt.Sprintf("set %s to a timestamp", key),
		}
	}
	t, ok := parseTime(raw)
	if !ok {
		return time.Time{}, typeError(key, "a timestamp", raw)
	}
	return t, nil
}

// parseTime accepts RFC3339 text, common date layouts, and unix
// seconds or milliseconds (numeric or numeric string).
func parseTime(v any) (time.Time, bool) {
	if n, ok := toNumber(v); ok {
		if _, isStr := v.(string); !isStr || looksNumeric(v.(string)) {
			return fromUnix(n), true
		}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromUnix(n float64) time.Time {
	// Values past the year 33658 in seconds are taken as milliseconds.
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

var numericText = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

func looksNumeric(s string) bool {
	return numericText.MatchString(s)
}

var dayUnit = regexp.MustCompile(`(-?\d+(?:\.\d+)?)d`)

// parseDuration extends Go duration syntax with a day unit.
func parseDuration(spec string) (time.Duration, error) {
	spec = dayUnit.ReplaceAllStringFunc(spec, func(m string) string {
		n, err := strconv.ParseFloat(m[:len(m)-1], 64)
		if err != nil {
			return m
		}
		return strconv.FormatFloat(n*24, 'f', -1, 64) + "h"
	})
	return time.ParseDuration(spec)
}
