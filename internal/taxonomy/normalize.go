package taxonomy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lower-cases s, turns every rune that is not a letter or digit into a
// space and collapses runs of spaces. Article text and keyword phrases both go
// through it so multi-word phrases match as contiguous substrings.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = cases.Lower(language.Und).String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}
