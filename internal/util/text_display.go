package util

import (
	"strings"
	"unicode"
)

// DisplaySnippet flattens s onto one line for terminal output, cutting it
// at maxRunes runes.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = SanitizeText(s)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	trimmed := strings.Join(strings.Fields(string(out)), " ")
	runes := []rune(trimmed)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return trimmed
}
