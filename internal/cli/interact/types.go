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

package interact

// InputType classifies how a form field is collected and validated.
type InputType string

const (
	// InputTypeString collects free text
	InputTypeString InputType = "string"

	// InputTypeNumber collects integers and floats
	InputTypeNumber InputType = "number"

	// InputTypeBoolean collects a yes/no answer
	InputTypeBoolean InputType = "boolean"

	// InputTypeEnum collects one of a fixed set of options
	InputTypeEnum InputType = "enum"

	// InputTypeArray collects a list (comma-separated or JSON)
	InputTypeArray InputType = "array"

	// InputTypeObject collects a JSON object
	InputTypeObject InputType = "object"
)

// Field is one entry of a form payload's fields array, normalized for
// prompting.
type Field struct {
	Name     string
	Label    string
	Type     InputType
	Required bool
	Default  any
	Options  []string // for enum fields
}

// MaxRetries is the maximum number of validation retry attempts per input.
const MaxRetries = 3

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 65536

// MaxNestedDepth is the maximum allowed nesting depth for objects.
const MaxNestedDepth = 10
