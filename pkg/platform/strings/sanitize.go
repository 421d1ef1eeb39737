package strings

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var escapedLineBreak = regexp.MustCompile(`(?i)%0[ad]`)

// SanitizeText normalizes untrusted single-field input. Control characters
// and literal or percent-encoded CR/LF become spaces, angle brackets are
// dropped, whitespace runs collapse to one space, and the result is trimmed
// and cut to max runes. SanitizeText(SanitizeText(s, n), n) == SanitizeText(s, n).
func SanitizeText(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r < 0x20 || r == 0x7f:
			return ' '
		}
		return r
	}, s)
	// Brackets go first so "%0<a" cannot reassemble into an escape afterwards.
	s = escapedLineBreak.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	return truncateRunes(s, max)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
