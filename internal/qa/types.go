package qa

import (
	"context"

	"qaforge/internal/providers"
	"qaforge/internal/vector"
)

// Chunk is a span of a document's extracted text. Index keeps the original
// order within the file; Source is the label shown in citations.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Index  int    `json:"index"`
}

type FileInput struct {
	FileID   string  `json:"file_id"`
	FileName string  `json:"file_name"`
	Chunks   []Chunk `json:"chunks"`
}

type EvidenceItem struct {
	Topic   string `json:"topic"`
	Context string `json:"context"`
}

// Metrics is the diagnostic side channel of a run. Keys are not a stable
// contract.
type Metrics map[string]any

const resultKey = "_result"

func (m Metrics) clone() Metrics {
	out := make(Metrics, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metrics) setDefault(k string, v any) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}

// State is the value threaded through the stages of one run. Stages never
// mutate the State they receive: they return a copy with fresh maps.
type State struct {
	Files          []FileInput
	RequestedTotal int
	Difficulty     string
	ShouldCancel   func() bool

	LLM        providers.LLMProvider
	Embeddings providers.EmbeddingProvider

	Normalized map[string][]Chunk
	Stores     map[string]vector.Store
	Topics     map[string][]string
	Evidence   map[string][]EvidenceItem
	Questions  map[string][]Question

	Metrics Metrics
	Result  []Question
}

func (s State) clone() State {
	out := s
	out.Metrics = s.Metrics.clone()
	return out
}

func (s State) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.ShouldCancel != nil && s.ShouldCancel()
}

// stopped returns s unchanged apart from recording where the run was
// cancelled.
func (s State) stopped(stage string) State {
	out := s.clone()
	out.Metrics.setDefault("cancelled", stage)
	return out
}

func (s State) fileCount() int {
	return max(1, len(s.Files))
}
