// Package sanitize strips characters that are not allowed in the text of an
// OOXML document.
package sanitize

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// isControl reports whether r is an ASCII control character
// (U+0000 through U+001F, and U+007F).
func isControl(r rune) bool {
	return r <= 0x1F || r == 0x7F
}

var stripControl = runes.Remove(runes.Predicate(isControl))

// Clean removes ASCII control characters from s. Everything else, including
// non-ASCII text, passes through unchanged.
func Clean(s string) string {
	if !hasControl(s) {
		return s
	}
	out, _, err := transform.String(stripControl, s)
	if err != nil {
		// runes.Remove never fails on valid input; fall back to a manual pass
		// for strings with invalid UTF-8.
		return cleanBytes(s)
	}
	return out
}

// CleanLines is Clean applied to each "\n"-separated line of s. The line
// breaks themselves are kept.
func CleanLines(s string) string {
	if !strings.Contains(s, "\n") {
		return Clean(s)
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = Clean(l)
	}
	return strings.Join(lines, "\n")
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if isControl(rune(s[i])) {
			return true
		}
	}
	return false
}

func cleanBytes(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if !isControl(rune(s[i])) {
			b = append(b, s[i])
		}
	}
	return string(b)
}
