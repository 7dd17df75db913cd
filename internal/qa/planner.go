package qa

import (
	"context"
	"fmt"
	"strings"

	"qaforge/internal/llm"
	"qaforge/internal/providers"
)

const (
	planSampleChunks = 8
	planSampleChars  = 600
)

// Planner asks the model for a short list of topics per file, based on the
// first few chunks.
func (p *Pipeline) Planner(ctx context.Context, st State) (State, error) {
	topics := map[string][]string{}
	for _, f := range st.Files {
		if st.cancelled(ctx) {
			return st.stopped("planner"), nil
		}
		sample := planSample(st.Normalized[f.FileID])
		if strings.TrimSpace(sample) == "" {
			topics[f.FileID] = []string{}
			continue
		}
		target := max(3, min(10, st.RequestedTotal/st.fileCount()/3+3))
		got, err := ask(ctx, p, st, providers.OpPlanTopics, plannerPrompt(target, sample), f.FileName, topicList)
		if err != nil {
			return st, fmt.Errorf("plan topics for %s: %w", f.FileName, err)
		}
		if len(got) > target {
			got = got[:target]
		}
		if got == nil {
			got = []string{}
		}
		topics[f.FileID] = got
	}
	out := st.clone()
	out.Topics = topics
	counts := make(map[string]int, len(topics))
	for k, v := range topics {
		counts[k] = len(v)
	}
	out.Metrics["topics_per_file"] = counts
	return out, nil
}

func planSample(chunks []Chunk) string {
	parts := make([]string, 0, planSampleChunks)
	for i, c := range chunks {
		if i == planSampleChunks {
			break
		}
		parts = append(parts, truncateRunes(c.Text, planSampleChars))
	}
	return strings.Join(parts, "\n\n")
}

func topicList(v any) ([]string, error) {
	items, err := llm.ItemList(v, "items", "topics", "data")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(stringOr(it, "")); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty topics list")
	}
	return out, nil
}

func plannerPrompt(target int, sample string) string {
	return "Сформируй список тем по документу ниже.\n" +
		fmt.Sprintf("Нужно ровно %d тем.\n", target) +
		"Темы короткие, существительные/словосочетания.\n" +
		"Верни ТОЛЬКО JSON-объект вида {\"items\": [\"тема\", ...]} без Markdown.\n\n" +
		"ДОКУМЕНТ (ФРАГМЕНТЫ):\n" + sample
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
