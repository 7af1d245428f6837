package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveKeywords flags query parameter names that must not reach logs.
// Matched as substrings, case-insensitively, so api_key, ApiKey, and
// X-Auth-Token are all caught.
var sensitiveKeywords = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"passwd",
	"auth",
	"secret",
	"key",
	"credential",
	"signature",
}

// sanitizeURL renders a URL for logging with sensitive query parameter
// values replaced by a placeholder.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	for param := range q {
		if isSensitiveParam(param) {
			q.Set(param, "[REDACTED]")
		}
	}

	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
