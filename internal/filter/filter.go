// Package filter holds the content rules applied to source text and to
// generated answers: line redaction, generic answer detection and the
// text normalization they share.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// RE2 word boundaries are ASCII only, so Cyrillic words need explicit
// letter-class boundaries.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var defaultUnrelated = []string{
	`(?i)` + wordStart + `(password|passcode|парол[ья])\s*[:=]`,
	`(?i)` + wordStart + `(api[-_ ]?key|apikey|access[-_ ]?key|secret|token|bearer)\s*[:=]`,
	`(?i)` + wordStart + `(client[_-]?secret|client[_-]?id)\s*[:=]`,
	`(?i)-----BEGIN (?:RSA |EC |OPENSSH |)?PRIVATE KEY-----`,
	`(?i)` + wordStart + `(sk-[a-z0-9]{10,})` + wordEnd,
	`(?i)` + wordStart + `(ssh-rsa|ssh-ed25519)` + wordEnd,
	`(?i)` + wordStart + `(privacy policy|cookie policy|terms of service|terms and conditions)` + wordEnd,
	`(?i)` + wordStart + `(политика конфиденциальности|пользовательское соглашение|условия использования|оферта)` + wordEnd,
	`(?i)` + wordStart + `(инн|огрн|кпп|снилс|паспорт|юридический адрес|банковские реквизиты|расчетный счет|корреспондентский счет|бик)` + wordEnd,
}

var defaultGeneric = []string{
	`^константа$`,
	`^константный ответ$`,
	`^оптимальный ответ$`,
	`^оптимальный константный ответ$`,
	`^среднее$`,
	`^среднее значение$`,
	`^среднее арифметическое$`,
}

var (
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s]`)
	tfLead        = regexp.MustCompile(`^[^a-zа-я0-9]+`)
	metricMarkers = regexp.MustCompile(wordStart + `(mse|rmse|mae|r2|констант|средн)` + wordEnd)

	tfPrefixes = []string{"верно ли", "правда ли", "всегда ли", "может ли", "является ли"}
)

// Redactor drops lines that look like secrets, personal data or legal
// boilerplate.
type Redactor struct {
	enabled  bool
	patterns []*regexp.Regexp
}

// NewRedactor compiles the built-in patterns plus extra ones.
func NewRedactor(enabled bool, extra []string) (*Redactor, error) {
	patterns, err := compile(append(append([]string{}, defaultUnrelated...), extra...), false)
	if err != nil {
		return nil, err
	}
	return &Redactor{enabled: enabled, patterns: patterns}, nil
}

// Filter returns text without matching lines and the number of lines removed.
func (r *Redactor) Filter(text string) (string, int) {
	if r == nil || !r.enabled || len(r.patterns) == 0 {
		return text, 0
	}
	removed := 0
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if r.matches(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), removed
}

func (r *Redactor) matches(line string) bool {
	for _, p := range r.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// GenericAnswers recognizes answers too vague to make a useful card.
type GenericAnswers struct {
	enabled  bool
	patterns []*regexp.Regexp
}

func NewGenericAnswers(enabled bool, extra []string) (*GenericAnswers, error) {
	patterns, err := compile(append(append([]string{}, defaultGeneric...), extra...), true)
	if err != nil {
		return nil, err
	}
	return &GenericAnswers{enabled: enabled, patterns: patterns}, nil
}

// IsGeneric reports whether answer should be discarded. Empty answers always
// are; a pattern match only counts for long questions that do not mention a
// metric whose answer is legitimately short.
func (g *GenericAnswers) IsGeneric(answer, question string) bool {
	if g == nil || !g.enabled {
		return false
	}
	a := NormalizeText(answer)
	if a == "" {
		return true
	}
	if a == "верно" || a == "неверно" {
		return false
	}
	for _, p := range g.patterns {
		if !p.MatchString(a) {
			continue
		}
		q := NormalizeText(question)
		return len([]rune(q)) >= 60 && !metricMarkers.MatchString(q)
	}
	return false
}

// NormalizeText lowercases, collapses whitespace and removes punctuation.
func NormalizeText(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return nonWord.ReplaceAllString(s, "")
}

// StartsWithTFPrefix reports whether question already reads as a yes/no
// question ("Верно ли ...", "Может ли ...").
func StartsWithTFPrefix(question string) bool {
	cleaned := tfLead.ReplaceAllString(strings.ToLower(strings.TrimSpace(question)), "")
	if cleaned == "" {
		return false
	}
	for _, p := range tfPrefixes {
		if strings.HasPrefix(cleaned, p) {
			return true
		}
	}
	return false
}

func compile(patterns []string, full bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		expr := p
		if full {
			expr = `^(?:` + p + `)$`
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
