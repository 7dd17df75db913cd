package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Operation names the pipeline sends with each generation request.
const (
	OpPlanTopics        = "plan_topics"
	OpGenerateQuestions = "generate_questions"
	OpRepairJSON        = "repair_json"
)

var mockContextLine = regexp.MustCompile(`(?m)^\[(\d+)\] source: (.+)\n(.+)$`)

// MockProvider answers deterministically so the pipeline can run without
// network access.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	var items []any
	switch req.Operation {
	case OpPlanTopics:
		items = []any{"Основные понятия", "Ключевые факты", "Примеры и применение"}
	case OpGenerateQuestions:
		items = mockQuestions(req.Prompt + "\n" + strings.Join(req.Context, "\n"))
	default:
		items = []any{}
	}
	raw, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("encode mock response: %w", err)
	}
	return GenerateResponse{Text: string(raw)}, info, nil
}

// mockQuestions turns every context entry of the prompt into one question,
// rotating through open, tf and mcq shapes.
func mockQuestions(prompt string) []any {
	matches := mockContextLine.FindAllStringSubmatch(prompt, -1)
	out := make([]any, 0, len(matches))
	for i, m := range matches {
		source, text := strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		words := strings.Fields(text)
		if len(words) == 0 {
			continue
		}
		head := strings.Join(words[:min(len(words), 10)], " ")
		item := map[string]any{
			"sources":  []string{source},
			"evidence": []string{head},
			"tags":     []string{"mock"},
		}
		switch i % 3 {
		case 0:
			item["type"] = "open"
			item["question"] = fmt.Sprintf("О чём говорится во фрагменте «%s»?", head)
			item["answer"] = strings.Join(words[:min(len(words), 25)], " ")
		case 1:
			item["type"] = "tf"
			item["question"] = fmt.Sprintf("фрагмент начинается словами «%s»", head)
			item["answer"] = "true"
		case 2:
			item["type"] = "mcq"
			item["question"] = fmt.Sprintf("Какое слово открывает фрагмент «%s»?", head)
			item["options"] = []string{words[0], "никакое", "все перечисленные", "нет верного ответа"}
			item["correct_index"] = 0
			item["answer"] = words[0]
		}
		out = append(out, item)
	}
	return out
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (float64(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
