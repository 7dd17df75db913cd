package qa

import (
	"context"
	"fmt"
	"strings"

	"qaforge/internal/llm"
	"qaforge/internal/providers"
)

const avoidWindow = 6

// QGen generates candidate questions per evidence item until each file has
// three times its share of the requested total.
func (p *Pipeline) QGen(ctx context.Context, st State) (State, error) {
	perTopic := min(p.settings.QuestionsPerTopic, 6)
	questions := make(map[string][]Question, len(st.Files))
	for _, f := range st.Files {
		if st.cancelled(ctx) {
			return st.stopped("qgen"), nil
		}
		quota := max(2, st.RequestedTotal/st.fileCount())
		target := quota * 3

		var got []Question
		for _, ev := range st.Evidence[f.FileID] {
			if st.cancelled(ctx) {
				return st.stopped("qgen"), nil
			}
			if ev.Context == "" {
				continue
			}
			prompt := qgenPrompt(perTopic, ev.Topic, st.Difficulty, avoidBlock(got), ev.Context)
			items, err := ask(ctx, p, st, providers.OpGenerateQuestions, prompt, f.FileName, questionItems)
			if err != nil {
				return st, fmt.Errorf("generate questions for %s: %w", f.FileName, err)
			}
			for _, raw := range items {
				if q, ok := FromRaw(raw); ok {
					got = append(got, q)
				}
			}
			if len(got) >= target {
				break
			}
		}
		if len(got) > target {
			got = got[:target]
		}
		if got == nil {
			got = []Question{}
		}
		questions[f.FileID] = got
	}
	out := st.clone()
	out.Questions = questions
	return out, nil
}

func questionItems(v any) ([]any, error) {
	return llm.ItemList(v, "items", "questions", "data")
}

func avoidBlock(prev []Question) string {
	var used []string
	for _, q := range prev {
		if s := strings.TrimSpace(q.Question); s != "" {
			used = append(used, s)
		}
	}
	if len(used) == 0 {
		return ""
	}
	if len(used) > avoidWindow {
		used = used[len(used)-avoidWindow:]
	}
	return "НЕ ПОВТОРЯЙ ЭТИ ИДЕИ:\n- " + strings.Join(used, "\n- ")
}

func qgenPrompt(perTopic int, topic, difficulty, avoid, context string) string {
	var b strings.Builder
	b.WriteString("Ты генерируешь обучающие вопросы по материалу.\n")
	b.WriteString("Правила:\n")
	b.WriteString("- Используй ТОЛЬКО информацию из КОНТЕКСТА.\n")
	b.WriteString("- Для каждого вопроса добавь sources: список меток source из контекста.\n")
	b.WriteString("- Типы: open, mcq, tf.\n")
	b.WriteString("- mcq: ровно 4 варианта, correct_index 0..3.\n")
	b.WriteString("- Язык: русский.\n")
	b.WriteString("- Каждый вопрос должен покрывать НОВЫЙ факт; не повторяй идеи.\n")
	fmt.Fprintf(&b, "- Нужно до %d вопросов.\n", perTopic)
	b.WriteString("- Верни ТОЛЬКО JSON-объект вида {\"items\": [...]} без Markdown и пояснений.\n")
	b.WriteString("Формат элементов:\n")
	b.WriteString("{type, question, answer, options, correct_index, tags, sources, evidence}\n\n")
	fmt.Fprintf(&b, "ТЕМА: %s\n", topic)
	fmt.Fprintf(&b, "СЛОЖНОСТЬ: %s\n\n", difficulty)
	fmt.Fprintf(&b, "%s\n\nКОНТЕКСТ:\n%s", avoid, context)
	return b.String()
}
