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

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/tombee/baton/pkg/errors"
)

// HookSignatureHeader carries the HMAC of a hook delivery's body.
const HookSignatureHeader = "X-Baton-Signature"

// VerifyHookSignature checks a hook delivery against the workflow's
// shared secret. The header value is the hex HMAC-SHA256 of the raw
// body, with an optional "sha256=" prefix. The comparison is constant
// time.
func VerifyHookSignature(r *http.Request, body []byte, secret string) error {
	signature := r.Header.Get(HookSignatureHeader)
	if signature == "" {
		return &errors.UnauthorizedError{Reason: "missing " + HookSignatureHeader + " header"}
	}

	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return &errors.UnauthorizedError{Reason: "hook signature mismatch"}
	}

	return nil
}

// SignHookBody computes the signature a caller should send for a hook
// delivery. The CLI uses it to exercise hook-triggered workflows.
func SignHookBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
