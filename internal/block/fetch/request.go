package fetch

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

var allowedMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
}

// request is the fully parsed fetch configuration for one execution.
type request struct {
	url        string
	method     string
	headers    map[string]string
	body       []byte
	bodyIsJSON bool

	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	multiplier float64

	accepted statusSet
	auth     *authConfig
}

// parseRequest validates resolved logic into a request. All failures are
// ValidationErrors naming the offending field.
func parseRequest(logic map[string]any) (*request, error) {
	rawURL, err := block.RequireString(logic, "fetch_url")
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &errors.ValidationError{
			Field:       "fetch_url",
			Message:     fmt.Sprintf("%q is not an absolute http(s) URL", rawURL),
			SuggestText: "use a full URL like https://api.example.com/path",
		}
	}

	method := "GET"
	if m, ok := block.GetString(logic, "fetch_method"); ok && m != "" {
		method = strings.ToUpper(strings.TrimSpace(m))
		if !allowedMethods[method] {
			return nil, &errors.ValidationError{
				Field:       "fetch_method",
				Message:     fmt.Sprintf("unsupported method %q", m),
				SuggestText: "use one of GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS",
			}
		}
	}

	headers := make(map[string]string)
	if hm, ok := block.GetMap(logic, "fetch_headers"); ok {
		for k, v := range hm {
			headers[k] = reference.Format(v)
		}
	}

	var body []byte
	var bodyIsJSON bool
	if raw, present := logic["fetch_body"]; present && raw != nil {
		switch v := raw.(type) {
		case string:
			body = []byte(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, &errors.ValidationError{
					Field:   "fetch_body",
					Message: fmt.Sprintf("body is not serializable: %v", err),
				}
			}
			body = encoded
			bodyIsJSON = true
		}
	}

	timeout, err := parseTimeout(logic)
	if err != nil {
		return nil, err
	}

	maxRetries, err := nonNegativeInt(logic, "fetch_max_retries", 1)
	if err != nil {
		return nil, err
	}

	delayMS, err := nonNegativeInt(logic, "fetch_retry_delay_ms", 1000)
	if err != nil {
		return nil, err
	}

	multiplier := 2.0
	if m, ok := block.GetNumber(logic, "fetch_backoff_multiplier"); ok {
		if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
			return nil, &errors.ValidationError{
				Field:       "fetch_backoff_multiplier",
				Message:     "multiplier must be a positive number",
				SuggestText: "use 2 for doubling delays, or 1 for a constant delay",
			}
		}
		multiplier = m
	}

	accepted, err := parseAccepted(logic)
	if err != nil {
		return nil, err
	}

	var auth *authConfig
	if am, ok := block.GetMap(logic, "fetch_auth"); ok {
		auth, err = parseAuth(am)
		if err != nil {
			return nil, err
		}
	}

	return &request{
		url:        rawURL,
		method:     method,
		headers:    headers,
		body:       body,
		bodyIsJSON: bodyIsJSON,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: time.Duration(delayMS) * time.Millisecond,
		multiplier: multiplier,
		accepted:   accepted,
		auth:       auth,
	}, nil
}

// parseTimeout reads fetch_timeout_ms, defaulting to 30s and clamping at
// the 60s ceiling.
func parseTimeout(logic map[string]any) (time.Duration, error) {
	ms := float64(workflow.DefaultFetchTimeout / time.Millisecond)
	if v, ok := block.GetNumber(logic, "fetch_timeout_ms"); ok {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return 0, &errors.ValidationError{
				Field:       "fetch_timeout_ms",
				Message:     "timeout must be a positive number of milliseconds",
				SuggestText: "omit the field for the 30000ms default",
			}
		}
		ms = v
	}
	if max := float64(workflow.MaxFetchTimeout / time.Millisecond); ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func nonNegativeInt(logic map[string]any, key string, def int) (int, error) {
	v, ok := block.GetNumber(logic, key)
	if !ok {
		return def, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, &errors.ValidationError{
			Field:   key,
			Message: "value must be a non-negative number",
		}
	}
	return int(v), nil
}

// statusSet is the acceptance predicate built from
// fetch_accepted_status_codes. Empty means "2xx only".
type statusSet struct {
	families map[int]bool
	codes    map[int]bool
}

func (s statusSet) accepts(code int) bool {
	if len(s.families) == 0 && len(s.codes) == 0 {
		return code >= 200 && code < 300
	}
	return s.families[code/100] || s.codes[code]
}

// parseAccepted reads fetch_accepted_status_codes entries: a family like
// "2xx", or an exact integer code.
func parseAccepted(logic map[string]any) (statusSet, error) {
	set := statusSet{
		families: make(map[int]bool),
		codes:    make(map[int]bool),
	}

	entries, ok := block.GetSlice(logic, "fetch_accepted_status_codes")
	if !ok {
		return set, nil
	}

	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			text := strings.ToLower(strings.TrimSpace(v))
			if len(text) == 3 && text[0] >= '1' && text[0] <= '5' && text[1:] == "xx" {
				set.families[int(text[0]-'0')] = true
				continue
			}
			if code, err := strconv.Atoi(text); err == nil && code >= 100 && code <= 599 {
				set.codes[code] = true
				continue
			}
			return set, acceptedEntryError(v)
		case float64:
			code := int(v)
			if float64(code) != v || code < 100 || code > 599 {
				return set, acceptedEntryError(v)
			}
			set.codes[code] = true
		case int:
			if v < 100 || v > 599 {
				return set, acceptedEntryError(v)
			}
			set.codes[v] = true
		default:
			return set, acceptedEntryError(entry)
		}
	}

	return set, nil
}

func acceptedEntryError(entry any) error {
	return &errors.ValidationError{
		Field:       "fetch_accepted_status_codes",
		Message:     fmt.Sprintf("entry %v is neither a status family nor a status code", entry),
		SuggestText: `use a family like "2xx" or an integer like 404`,
	}
}
