package shared

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ToUpper converts "foo" to "FOO".
func ToUpper(s string) string {
	// a Caser holds state, so one per call
	return cases.Upper(language.Und).String(s)
}

// SentenceCase converts "foo bar" to "Foo bar".
func SentenceCase(s string) string {
	if s == "" {
		return s
	}
	_, n := utf8.DecodeRuneInString(s)
	return ToUpper(s[:n]) + s[n:]
}

// ToWords converts "foo_bar" to "foo bar".
func ToWords(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// ToTitle converts "foo_bar" to "Foo bar". Titles use sentence case.
func ToTitle(s string) string {
	return SentenceCase(ToWords(s))
}
