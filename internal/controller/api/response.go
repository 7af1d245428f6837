// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/baton/internal/tracing"
	"github.com/tombee/baton/pkg/errors"
)

// maxRequestBodySize caps request bodies on every mutating endpoint.
const maxRequestBodySize = 1 * 1024 * 1024 // 1MB

// Envelope is the fixed response shape. Exactly one of Data and Error
// is set; Meta rides along on paginated listings.
type Envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
	Meta  *Meta      `json:"meta"`
}

// ErrorBody is the wire form of a failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta carries pagination state.
type Meta struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Total    int    `json:"total,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to write response", slog.Any("error", err))
	}
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Data: data})
}

// WritePage writes a success envelope with pagination meta.
func WritePage(w http.ResponseWriter, status int, data any, meta *Meta) {
	writeEnvelope(w, status, Envelope{Data: data, Meta: meta})
}

// WriteErr normalizes an error into the envelope. Server faults log
// the full error with the request's correlation ID; client errors log
// at debug so a misbehaving caller cannot flood the logs.
func WriteErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(code)

	if logger != nil {
		attrs := []any{
			slog.String("code", string(code)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", tracing.CorrelationIDOrEmpty(r.Context())),
			slog.Any("error", err),
		}
		if status >= 500 {
			logger.Error("request failed", attrs...)
		} else {
			logger.Debug("request rejected", attrs...)
		}
	}

	writeEnvelope(w, status, Envelope{Error: &ErrorBody{
		Code:    string(code),
		Message: err.Error(),
		Details: errorDetails(err),
	}})
}

// errorDetails extracts the structured payload some error kinds carry.
func errorDetails(err error) any {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		details := map[string]any{"field": verr.Field}
		if verr.SuggestText != "" {
			details["suggestion"] = verr.SuggestText
		}
		return details
	}
	var rerr *errors.RateLimitError
	if errors.As(err, &rerr) {
		return map[string]any{
			"scope":      rerr.Scope,
			"limit":      rerr.Limit,
			"retryAfter": int(rerr.RetryAfter / time.Second),
		}
	}
	return nil
}

// ErrorWriter adapts WriteErr for middleware that renders failures
// outside this package, keeping every response in the envelope shape.
func ErrorWriter(logger *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		WriteErr(w, r, logger, err)
	}
}

// ReadJSON decodes a request body into dst. A missing body, oversized
// body or malformed JSON comes back as a ValidationError so the caller
// can hand it straight to WriteErr.
func ReadJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return &errors.ValidationError{Field: "body", Message: "failed to read request body"}
	}
	if len(body) > maxRequestBodySize {
		return &errors.ValidationError{
			Field:       "body",
			Message:     "request body exceeds 1MB",
			SuggestText: "trim the payload",
		}
	}
	if len(body) == 0 {
		return &errors.ValidationError{Field: "body", Message: "request body is required"}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &errors.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	return nil
}

// ReadOptionalJSON is ReadJSON for endpoints where an empty body is a
// valid request; dst keeps its zero value in that case.
func ReadOptionalJSON(r *http.Request, dst any) error {
	err := ReadJSON(r, dst)
	var verr *errors.ValidationError
	if errors.As(err, &verr) && verr.Message == "request body is required" {
		return nil
	}
	return err
}
