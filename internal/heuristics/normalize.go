package heuristics

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for keyword matching.
// "קַצָּבִיַּת  Cohen" -> "קצביית cohen".
// "Café Basar" -> "cafe basar".
func Normalize(s string) string {
	// Decompose so niqqud, cantillation and Latin accents become separate marks.
	s = norm.NFKD.String(s)

	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)

	s = norm.NFC.String(s)
	s = strings.ToLower(s)

	return strings.Join(strings.Fields(s), " ")
}

// HasHebrew reports whether s contains any character of the Hebrew script.
func HasHebrew(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hebrew, r) {
			return true
		}
	}
	return false
}
