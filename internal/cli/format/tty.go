package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout should receive terminal formatting.
// Piped output, NO_COLOR, and dumb or unset terminals all disable it.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch os.Getenv("TERM") {
	case "", "dumb":
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
