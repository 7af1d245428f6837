package workflow

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID mints a 21-character nanoid. Used for step and artifact IDs.
func NewID() string {
	return gonanoid.Must()
}

// NewToken mints a longer nanoid for single-use credentials such as
// resume tokens.
func NewToken() string {
	return gonanoid.Must(32)
}
