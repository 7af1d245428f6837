package workflow

import (
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugFold strips diacritics so accented names reduce to ASCII before
// the character filter runs.
var slugFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

const maxSlugLength = 60

// slugSuffixAlphabet keeps collision suffixes inside the slug charset.
const slugSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DeriveSlug normalizes a workflow name into a public URL slug:
// diacritics folded, lowercased, runs of other characters collapsed to
// single hyphens. Falls back to "workflow" when nothing survives.
func DeriveSlug(name string) string {
	folded, _, err := transform.String(slugFold, name)
	if err != nil {
		folded = name
	}
	lower := cases.Lower(language.Und).String(folded)

	var b strings.Builder
	pending := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
		} else {
			pending = true
		}
	}

	slug := b.String()
	if slug == "" {
		return "workflow"
	}
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// SlugWithSuffix derives a slug with a short random tail for retrying
// after a uniqueness collision.
func SlugWithSuffix(name string) string {
	return DeriveSlug(name) + "-" + gonanoid.MustGenerate(slugSuffixAlphabet, 6)
}
