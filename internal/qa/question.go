package qa

import (
	"fmt"
	"strconv"
	"strings"

	"qaforge/internal/filter"
)

const (
	TypeOpen = "open"
	TypeMCQ  = "mcq"
	TypeTF   = "tf"
)

// Question is one flashcard candidate. Options and CorrectIndex only mean
// something for mcq items before the display rewrite.
type Question struct {
	Type         string   `json:"type"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Tags         []string `json:"tags"`
	Sources      []string `json:"sources"`
	Evidence     []string `json:"evidence"`
	Options      []string `json:"options,omitempty"`
	CorrectIndex *int     `json:"correct_index,omitempty"`
}

func questionText(q Question) string { return q.Question }

// FromRaw interprets one loosely shaped model item. It is the only place
// that knows the raw shape: tags may be a space separated string, sources a
// comma separated string, evidence a single string, and correct_index a
// digit string. Items without question text are rejected.
func FromRaw(raw any) (Question, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Question{}, false
	}
	q := Question{
		Type:       strings.ToLower(strings.TrimSpace(stringOr(m["type"], TypeOpen))),
		Question:   strings.TrimSpace(stringOr(m["question"], "")),
		Answer:     strings.TrimSpace(stringOr(m["answer"], "")),
		Difficulty: strings.TrimSpace(stringOr(m["difficulty"], "")),
		Tags:       []string{},
		Sources:    []string{},
		Evidence:   []string{},
	}
	if q.Question == "" {
		return Question{}, false
	}
	if q.Type == "" {
		q.Type = TypeOpen
	}
	switch v := m["tags"].(type) {
	case string:
		q.Tags = strings.Fields(v)
	case []any:
		q.Tags = stringList(v)
	}
	switch v := m["sources"].(type) {
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Sources = append(q.Sources, s)
			}
		}
	case []any:
		q.Sources = stringList(v)
	}
	switch v := m["evidence"].(type) {
	case string:
		if v != "" {
			q.Evidence = []string{v}
		}
	case []any:
		q.Evidence = stringList(v)
	}
	if opts, ok := m["options"].([]any); ok {
		q.Options = make([]string, 0, len(opts))
		for _, o := range opts {
			q.Options = append(q.Options, stringOr(o, ""))
		}
	}
	q.CorrectIndex = indexOf(m["correct_index"])
	return q, true
}

func stringOr(v any, fallback string) string {
	switch t := v.(type) {
	case nil:
		return fallback
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func stringList(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s := stringOr(v, ""); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func indexOf(v any) *int {
	switch t := v.(type) {
	case float64:
		if t == float64(int(t)) {
			i := int(t)
			return &i
		}
	case int:
		return &t
	case string:
		if t != "" && strings.Trim(t, "0123456789") == "" {
			if i, err := strconv.Atoi(t); err == nil {
				return &i
			}
		}
	}
	return nil
}

// normalizeItems tightens candidates before mixing: lowercases tags, fills
// difficulty, demotes malformed mcq items to open and drops generic answers.
func normalizeItems(items []Question, difficulty string, generic *filter.GenericAnswers) []Question {
	out := make([]Question, 0, len(items))
	for _, it := range items {
		q := it
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		q.Type = strings.ToLower(strings.TrimSpace(q.Type))
		q.Answer = strings.TrimSpace(q.Answer)
		if q.Difficulty == "" {
			q.Difficulty = difficulty
		}
		tags := make([]string, 0, len(q.Tags))
		for _, t := range q.Tags {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				tags = append(tags, t)
			}
		}
		q.Tags = tags
		if q.Type == TypeMCQ && (len(q.Options) != 4 || q.CorrectIndex == nil || *q.CorrectIndex < 0 || *q.CorrectIndex >= 4) {
			q.Type = TypeOpen
			q.Options = nil
			q.CorrectIndex = nil
		}
		if generic.IsGeneric(q.Answer, q.Question) {
			continue
		}
		out = append(out, q)
	}
	return out
}

var (
	trueAnswers  = map[string]bool{"true": true, "верно": true, "истина": true, "да": true}
	falseAnswers = map[string]bool{"false": true, "неверно": true, "ложь": true, "нет": true}
)

// toDisplay rewrites any candidate into an open question and answer.
func toDisplay(it Question) Question {
	q := it
	tags := append([]string(nil), it.Tags...)
	switch q.Type {
	case TypeMCQ:
		if ci := q.CorrectIndex; ci != nil && *ci >= 0 && *ci < len(q.Options) {
			if opt := strings.TrimSpace(q.Options[*ci]); opt != "" {
				q.Answer = opt
			}
		}
		tags = withOpenTag(tags, TypeMCQ)
	case TypeTF:
		if q.Question != "" && !filter.StartsWithTFPrefix(q.Question) {
			q.Question = "Верно ли, что " + strings.TrimRight(q.Question, "?") + "?"
		}
		switch a := strings.ToLower(q.Answer); {
		case trueAnswers[a]:
			q.Answer = "Верно"
		case falseAnswers[a]:
			q.Answer = "Неверно"
		}
		tags = withOpenTag(tags, TypeTF)
	}
	q.Type = TypeOpen
	q.Options = nil
	q.CorrectIndex = nil
	if tags == nil {
		tags = []string{}
	}
	q.Tags = tags
	return q
}

func withOpenTag(tags []string, drop string) []string {
	out := make([]string, 0, len(tags)+1)
	hasOpen := false
	for _, t := range tags {
		if t == drop {
			continue
		}
		if t == TypeOpen {
			hasOpen = true
		}
		out = append(out, t)
	}
	if !hasOpen {
		out = append(out, TypeOpen)
	}
	return out
}

// StripAnswers removes answers, and the correct option of mcq items, for
// decks exported without answers.
func StripAnswers(items []Question) []Question {
	out := make([]Question, len(items))
	for i, it := range items {
		it.Answer = ""
		if it.Type == TypeMCQ {
			it.CorrectIndex = nil
		}
		out[i] = it
	}
	return out
}
