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

package errors

import (
	"context"
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error kind. Codes cross the API
// boundary verbatim inside the response envelope, so the set is closed:
// adding a value is an API change.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeUnprocessable      Code = "UNPROCESSABLE"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeTimeout            Code = "TIMEOUT"
	CodeHandlerUnsupported Code = "HANDLER_UNSUPPORTED"
	CodeGotoDepthExceeded  Code = "GOTO_DEPTH_EXCEEDED"
	CodeGotoTargetMissing  Code = "GOTO_TARGET_MISSING"
	CodeRunTimeout         Code = "RUN_TIMEOUT"
	CodeCancelled          Code = "CANCELLED"
)

// Coder is implemented by errors that carry a Code. CodeOf uses it to
// classify arbitrary error chains.
type Coder interface {
	error
	ErrorCode() Code
}

// CodeOf walks err's chain and returns the first Code found.
// Errors without a Code classify as CodeInternal; context cancellation
// and deadline expiry map to their engine-level kinds so callers never
// surface a bare context error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// HTTPStatus maps a Code to the HTTP status the API responds with.
// Engine-internal kinds (goto faults, run timeout, handler gaps) surface
// as 422: the request was well-formed but the run cannot proceed.
func HTTPStatus(c Code) int {
	switch c {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnprocessable, CodeHandlerUnsupported, CodeGotoDepthExceeded, CodeGotoTargetMissing:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout, CodeRunTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
