// Package qa turns chunked documents into deduplicated flashcards by running
// a fixed chain of stages: Setup, NormalizeChunks, IndexPerFile, Planner,
// Evidence, QGen, Verifier and Mixer.
package qa

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qaforge/internal/config"
	"qaforge/internal/filter"
	"qaforge/internal/llm"
	"qaforge/internal/providers"
	"qaforge/internal/vector"
)

const defaultTopic = "ключевые факты"

type Settings struct {
	UseEmbeddings     bool
	EmbedDim          int
	TopK              int
	MaxChunks         int
	QuestionsPerTopic int
	ContextMaxChars   int
	Attempts          int
	JSONRetries       int
	RepairMaxChars    int
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		UseEmbeddings:     cfg.RAGUseEmbeddings,
		EmbedDim:          cfg.EmbedDim,
		TopK:              cfg.RAGTopK,
		MaxChunks:         cfg.RAGMaxChunks,
		QuestionsPerTopic: cfg.RAGQuestionsPerTopic,
		ContextMaxChars:   cfg.ContextMaxChars,
		Attempts:          cfg.LLMAttempts,
		JSONRetries:       cfg.LLMJSONRetries,
		RepairMaxChars:    cfg.LLMJSONRepairChars,
	}
}

func (s Settings) withDefaults() Settings {
	if s.TopK <= 0 {
		s.TopK = 5
	}
	if s.MaxChunks <= 0 {
		s.MaxChunks = 400
	}
	if s.QuestionsPerTopic <= 0 {
		s.QuestionsPerTopic = 6
	}
	if s.ContextMaxChars <= 0 {
		s.ContextMaxChars = 1600
	}
	if s.Attempts <= 0 {
		s.Attempts = llm.DefaultAttempts
	}
	if s.JSONRetries < 0 {
		s.JSONRetries = 0
	}
	if s.RepairMaxChars <= 0 {
		s.RepairMaxChars = llm.DefaultRepairMaxChars
	}
	return s
}

// Deps are the collaborators of a Pipeline. Only LLM is required.
type Deps struct {
	LLM providers.LLMProvider
	// Embeddings builds the embedding backend for a run; failures degrade the
	// run to lexical retrieval.
	Embeddings func(ctx context.Context) (providers.EmbeddingProvider, error)
	// NewIndex opens the vector index for an embedding backend. Defaults to an
	// in-memory index.
	NewIndex func(providers.EmbeddingProvider) vector.Index
	Redactor *filter.Redactor
	Generic  *filter.GenericAnswers
	Observer llm.Observer
	Logger   *zap.Logger
	Metrics  *Collector
}

type Pipeline struct {
	settings Settings
	deps     Deps
	logger   *zap.Logger
}

func New(settings Settings, deps Deps) (*Pipeline, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("qa pipeline requires an llm provider")
	}
	settings = settings.withDefaults()
	if deps.NewIndex == nil {
		dim := settings.EmbedDim
		deps.NewIndex = func(emb providers.EmbeddingProvider) vector.Index { return vector.NewMemoryIndex(emb, dim) }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{settings: settings, deps: deps, logger: deps.Logger}, nil
}

type runOptions struct {
	shouldCancel func() bool
	embeddings   providers.EmbeddingProvider
}

type RunOption func(*runOptions)

// WithCancel makes the run poll fn and stop early once it returns true.
func WithCancel(fn func() bool) RunOption {
	return func(o *runOptions) { o.shouldCancel = fn }
}

// WithEmbeddings supplies an already built embedding backend, skipping
// Deps.Embeddings.
func WithEmbeddings(emb providers.EmbeddingProvider) RunOption {
	return func(o *runOptions) { o.embeddings = emb }
}

type stage struct {
	name string
	run  func(context.Context, State) (State, error)
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{"setup", p.Setup},
		{"normalize_chunks", p.NormalizeChunks},
		{"index_per_file", p.IndexPerFile},
		{"planner", p.Planner},
		{"evidence", p.Evidence},
		{"qgen", p.QGen},
		{"verifier", p.Verifier},
		{"mixer", p.Mixer},
	}
}

// Generate runs every stage over files and returns at most requestedTotal
// display-ready questions with the run metrics. Stage errors abort the run.
// A cancelled run returns whatever partial result exists and no error.
func (p *Pipeline) Generate(ctx context.Context, files []FileInput, requestedTotal int, difficulty string, opts ...RunOption) ([]Question, Metrics, error) {
	if requestedTotal < 1 {
		return nil, nil, fmt.Errorf("requested total must be at least 1, got %d", requestedTotal)
	}
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}
	counter := &countingLLM{inner: p.deps.LLM}
	st := State{
		Files:          files,
		RequestedTotal: requestedTotal,
		Difficulty:     difficulty,
		ShouldCancel:   ro.shouldCancel,
		LLM:            counter,
		Embeddings:     ro.embeddings,
		Metrics:        Metrics{},
	}

	var err error
	for _, s := range p.stages() {
		start := time.Now()
		st, err = s.run(ctx, st)
		p.deps.Metrics.observeStage(s.name, time.Since(start))
		if err != nil {
			p.deps.Metrics.observeRun("failed", 0, counter.calls)
			return nil, st.Metrics, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	metrics := st.Metrics.clone()
	delete(metrics, resultKey)
	metrics["llm_calls"] = counter.calls
	outcome := "ok"
	if _, ok := metrics["cancelled"]; ok {
		outcome = "cancelled"
	}
	if mode, _ := metrics["retrieval_mode"].(string); mode == "lexical" {
		p.deps.Metrics.observeFallback()
	}
	p.deps.Metrics.observeRun(outcome, len(st.Result), counter.calls)
	p.logger.Info("qa run finished",
		zap.Int("files", len(files)),
		zap.Int("requested", requestedTotal),
		zap.Int("returned", len(st.Result)),
		zap.Int("llm_calls", counter.calls),
		zap.String("outcome", outcome))
	return st.Result, metrics, nil
}

func (p *Pipeline) invokeOptions(st State) llm.Options {
	return llm.Options{
		Attempts:     p.settings.Attempts,
		ShouldCancel: st.ShouldCancel,
		Logger:       p.logger,
		Observer:     p.deps.Observer,
	}
}

func (p *Pipeline) repairOptions(st State, label string) llm.RepairOptions {
	return llm.RepairOptions{
		Retries:  p.settings.JSONRetries,
		MaxChars: p.settings.RepairMaxChars,
		Label:    label,
		Invoke:   p.invokeOptions(st),
	}
}

// ask sends prompt and decodes the reply with accept, repairing bad JSON.
func ask[T any](ctx context.Context, p *Pipeline, st State, op, prompt, label string, accept func(any) (T, error)) (T, error) {
	var zero T
	raw, err := llm.Invoke(ctx, st.LLM, providers.GenerateRequest{Operation: op, Prompt: prompt}, p.invokeOptions(st))
	if err != nil {
		return zero, err
	}
	return llm.ParseWithRepair(ctx, st.LLM, raw, p.repairOptions(st, label), accept)
}

type countingLLM struct {
	inner providers.LLMProvider
	calls int
}

func (c *countingLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	c.calls++
	return c.inner.Generate(ctx, req)
}
