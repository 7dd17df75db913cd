package util

import (
	"regexp"
	"strings"
)

var (
	blankRuns = regexp.MustCompile(`[ \t]+`)
	manyLines = regexp.MustCompile(`\n{3,}`)
)

// SanitizeText removes bytes and control characters that Postgres text columns reject
// (especially NUL / 0x00 from some PDF extractors).
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// NormalizeExtracted turns carriage returns into newlines, squeezes runs of
// spaces and tabs, and keeps at most one blank line between paragraphs.
func NormalizeExtracted(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRuns.ReplaceAllString(s, " ")
	s = manyLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
