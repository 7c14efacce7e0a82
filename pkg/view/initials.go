package view

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Initials returns the uppercased first letters of the first two words of name,
// or "?" when name is blank.
func Initials(name string) string {
	words := strings.Fields(norm.NFC.String(name))
	if len(words) == 0 {
		return "?"
	}

	var sb strings.Builder
	for _, w := range words[:min(len(words), 2)] {
		r, _ := utf8.DecodeRuneInString(w)
		sb.WriteRune(r)
	}
	// a Caser is stateful and must not be shared between goroutines
	return cases.Upper(language.Und).String(sb.String())
}
