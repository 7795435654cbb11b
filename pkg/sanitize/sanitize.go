// Package sanitize normalises user supplied text before it is stored.
// Free text is kept as submitted; rendering layers escape it for their format.
package sanitize

import (
	"strings"
	"unicode"
)

// Text returns free text unchanged apart from NUL bytes, which Postgres text
// columns reject.
func Text(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// Ptr applies Text to an optional value, keeping nil as nil.
func Ptr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := Text(*s)
	return &cleaned
}

// Line prepares a single-line label such as a name. Control characters
// become spaces and surrounding whitespace is trimmed.
func Line(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s))
}

// LinePtr applies Line to an optional value, keeping nil as nil.
func LinePtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := Line(*s)
	return &cleaned
}

// Blank reports whether s has no visible characters.
func Blank(s string) bool {
	return strings.TrimSpace(Text(s)) == ""
}

// All applies Text to each element and drops the blank ones.
func All(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if Blank(v) {
			continue
		}
		out = append(out, Text(v))
	}
	return out
}
