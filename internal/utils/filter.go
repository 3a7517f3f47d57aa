package utils

import (
	"strings"
	"unicode"
)

// CleanQuery drops control characters from s and caps it at maxRunes runes.
// maxRunes <= 0 means no cap.
func CleanQuery(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if maxRunes > 0 && n == maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// HasSearchableChars reports whether s has at least one letter or digit.
func HasSearchableChars(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
