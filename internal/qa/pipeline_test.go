package qa

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"qaforge/internal/filter"
	"qaforge/internal/llm"
	"qaforge/internal/providers"
	"qaforge/internal/vector"
)

type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	onCall  func(n int)
	err     error
	replies map[string]string
}

func (f *fakeLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	info := providers.ProviderInfo{Name: "fake", Model: "fake-1"}
	if f.err != nil {
		return providers.GenerateResponse{}, info, f.err
	}
	if r, ok := f.replies[req.Operation]; ok {
		return providers.GenerateResponse{Text: r}, info, nil
	}
	return providers.GenerateResponse{Text: `{"items": []}`}, info, nil
}

func sampleFiles() []FileInput {
	return []FileInput{{
		FileID:   "t1:notes.txt",
		FileName: "notes.txt",
		Chunks: []Chunk{
			{Text: "Фотосинтез превращает свет в химическую энергию растений.", Source: "notes.txt", Index: 0},
			{Text: "Митохондрии вырабатывают АТФ при клеточном дыхании.", Source: "notes.txt", Index: 1},
			{Text: "Рибосомы собирают белки из аминокислот по матрице РНК.", Source: "notes.txt", Index: 2},
		},
	}}
}

func newTestPipeline(t *testing.T, settings Settings, deps Deps) *Pipeline {
	t.Helper()
	generic, err := filter.NewGenericAnswers(true, nil)
	require.NoError(t, err)
	if deps.Generic == nil {
		deps.Generic = generic
	}
	p, err := New(settings, deps)
	require.NoError(t, err)
	return p
}

func TestNewRequiresLLM(t *testing.T) {
	_, err := New(Settings{}, Deps{})
	require.Error(t, err)
}

func TestGenerateRejectsZeroTotal(t *testing.T) {
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}})
	_, _, err := p.Generate(context.Background(), sampleFiles(), 0, "medium")
	require.Error(t, err)
}

func TestGenerateCancelledBeforeStart(t *testing.T) {
	fake := &fakeLLM{}
	p := newTestPipeline(t, Settings{}, Deps{LLM: fake})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 5, "medium", WithCancel(func() bool { return true }))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 0, fake.calls)
	require.Equal(t, 0, metrics["llm_calls"])
	require.Equal(t, "normalize_chunks", metrics["cancelled"])
}

func TestGenerateCancelledMidRun(t *testing.T) {
	var mu sync.Mutex
	stop := false
	fake := &fakeLLM{
		replies: map[string]string{providers.OpPlanTopics: `{"items": ["клетка"]}`},
		onCall: func(int) {
			mu.Lock()
			stop = true
			mu.Unlock()
		},
	}
	cancel := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stop
	}
	p := newTestPipeline(t, Settings{}, Deps{LLM: fake})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 5, "medium", WithCancel(cancel))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 1, metrics["llm_calls"])
	require.Equal(t, "evidence", metrics["cancelled"])
}

func TestGenerateFatalProviderError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("402 payment required")}
	p := newTestPipeline(t, Settings{}, Deps{LLM: fake})

	_, _, err := p.Generate(context.Background(), sampleFiles(), 5, "medium")
	require.ErrorIs(t, err, llm.ErrFatalProvider)
	require.Contains(t, err.Error(), "planner")
	require.Equal(t, 1, fake.calls)
}

func TestGenerateWithMockProviderLexical(t *testing.T) {
	p := newTestPipeline(t, Settings{UseEmbeddings: false}, Deps{LLM: providers.NewMockProvider(0)})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 3, "medium")
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "lexical", metrics["retrieval_mode"])
	require.Equal(t, 3, metrics["final_count"])
	require.NotContains(t, metrics, resultKey)
	for _, q := range out {
		require.Equal(t, TypeOpen, q.Type)
		require.Nil(t, q.Options)
		require.Nil(t, q.CorrectIndex)
		require.NotEmpty(t, q.Answer)
		require.NotEmpty(t, q.Sources)
		require.Equal(t, "medium", q.Difficulty)
	}
}

func TestGenerateWithMockProviderVector(t *testing.T) {
	mock := providers.NewMockProvider(16)
	p := newTestPipeline(t, Settings{UseEmbeddings: true, EmbedDim: 16}, Deps{
		LLM:        mock,
		Embeddings: func(context.Context) (providers.EmbeddingProvider, error) { return mock, nil },
	})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 4, "hard")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.LessOrEqual(t, len(out), 4)
	require.Equal(t, "vector", metrics["retrieval_mode"])
	require.Equal(t, 1, metrics["indexed_files"])
}

func TestGenerateEmbeddingsInitFailureFallsBackToLexical(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	p := newTestPipeline(t, Settings{UseEmbeddings: true}, Deps{
		LLM: providers.NewMockProvider(0),
		Embeddings: func(context.Context) (providers.EmbeddingProvider, error) {
			return nil, errors.New("no embedding provider available")
		},
		Metrics: collector,
	})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 3, "medium")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Equal(t, "lexical", metrics["retrieval_mode"])
	require.Equal(t, true, metrics["embeddings_disabled"])
	require.Contains(t, metrics["embeddings_error"], "no embedding provider")

	require.Equal(t, 1.0, testutil.ToFloat64(collector.fallbacks))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.runs.WithLabelValues("ok")))
	require.Equal(t, float64(len(out)), testutil.ToFloat64(collector.questions))
}

type failingIndex struct{}

func (failingIndex) Open(context.Context, string, []vector.Document) (vector.Store, error) {
	return nil, errors.New("pgvector unreachable")
}

func TestGenerateIndexFailureFallsBackToLexical(t *testing.T) {
	mock := providers.NewMockProvider(8)
	p := newTestPipeline(t, Settings{UseEmbeddings: true}, Deps{
		LLM:        mock,
		Embeddings: func(context.Context) (providers.EmbeddingProvider, error) { return mock, nil },
		NewIndex:   func(providers.EmbeddingProvider) vector.Index { return failingIndex{} },
	})

	out, metrics, err := p.Generate(context.Background(), sampleFiles(), 3, "medium")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Equal(t, "lexical", metrics["retrieval_mode"])
	require.Equal(t, 0, metrics["indexed_files"])
}

type batchCountingEmbedder struct {
	mu      sync.Mutex
	batches int
}

func (b *batchCountingEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	b.mu.Lock()
	b.batches++
	b.mu.Unlock()
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, providers.ProviderInfo{Name: "counting"}, nil
}

func TestIndexPerFileStopsBetweenEmbeddingBatches(t *testing.T) {
	emb := &batchCountingEmbedder{}
	p := newTestPipeline(t, Settings{UseEmbeddings: true}, Deps{LLM: &fakeLLM{}})
	chunks := make([]Chunk, 100)
	for i := range chunks {
		chunks[i] = Chunk{Text: "Клетка делится митозом.", Source: "big.txt", Index: i}
	}
	polls := 0
	st := State{
		Files:      []FileInput{{FileID: "t1:big.txt", FileName: "big.txt", Chunks: chunks}},
		Embeddings: emb,
		Normalized: map[string][]Chunk{"t1:big.txt": chunks},
		Metrics:    Metrics{},
	}
	st.ShouldCancel = func() bool {
		polls++
		return emb.batches >= 1
	}

	out, err := p.IndexPerFile(context.Background(), st)
	require.NoError(t, err)
	require.Equal(t, 1, emb.batches)
	require.Equal(t, 3, polls, "one poll before the file and one before each batch")
	require.Equal(t, "index_per_file", out.Metrics["cancelled"])
	require.Nil(t, out.Stores)
	require.NotContains(t, out.Metrics, "embeddings_disabled")
}

func TestNormalizeChunksRedactsAndDropsEmpty(t *testing.T) {
	red, err := filter.NewRedactor(true, nil)
	require.NoError(t, err)
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}, Redactor: red})
	st := State{
		Files: []FileInput{
			{FileID: "a", FileName: "a.txt", Chunks: []Chunk{
				{Text: "password: hunter2\nОсмос это перенос воды через мембрану.", Index: 0},
				{Text: "   ", Index: 1},
			}},
			{FileID: "b", FileName: "b.txt", Chunks: []Chunk{{Text: "api_key = abc", Index: 0}}},
		},
		Metrics: Metrics{},
	}

	out, err := p.NormalizeChunks(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, out.Normalized, 1)
	require.Equal(t, []Chunk{{Text: "Осмос это перенос воды через мембрану.", Source: "a.txt", Index: 0}}, out.Normalized["a"])
	require.Equal(t, 2, out.Metrics["redacted_lines"])
	require.Empty(t, st.Metrics, "input state must not change")
}

func TestLexicalTopRanksByOverlap(t *testing.T) {
	idx := newLexicalIndex([]Chunk{
		{Text: "dogs bark loudly", Index: 0},
		{Text: "cats purr and cats sleep", Index: 1},
		{Text: "birds sing, cats listen", Index: 2},
	})

	got := idx.top("cats", 5)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Index)
	require.Equal(t, 2, got[1].Index)

	got = idx.top("sleeping cats sleep", 1)
	require.Equal(t, []Chunk{{Text: "cats purr and cats sleep", Index: 1}}, got)

	got = idx.top("zebras", 2)
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, 1, got[1].Index)
}

func TestContextPacketFormat(t *testing.T) {
	got := contextPacket([]Chunk{{Text: "  первый  ", Source: "a.txt", Index: 3}, {Text: "второй"}}, 1600)
	require.Equal(t, "[1] source: a.txt#chunk3\nпервый\n\n[2] source: unknown#chunk0\nвторой", got)
}

func TestPlannerCapsTopics(t *testing.T) {
	fake := &fakeLLM{replies: map[string]string{
		providers.OpPlanTopics: `{"topics": ["a", "b", "c", "d", "e", "f"]}`,
	}}
	p := newTestPipeline(t, Settings{}, Deps{LLM: fake})
	st := State{
		Files:          sampleFiles(),
		RequestedTotal: 3,
		LLM:            fake,
		Normalized:     map[string][]Chunk{"t1:notes.txt": sampleFiles()[0].Chunks},
		Metrics:        Metrics{},
	}

	out, err := p.Planner(context.Background(), st)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, out.Topics["t1:notes.txt"])
}

func TestQGenSendsAvoidList(t *testing.T) {
	var prompts []string
	fake := &fakeLLM{replies: map[string]string{
		providers.OpGenerateQuestions: `{"items": [{"type": "open", "question": "Что такое осмос?", "answer": "Перенос воды"}]}`,
	}}
	recorder := &promptRecorder{inner: fake, prompts: &prompts}
	p := newTestPipeline(t, Settings{}, Deps{LLM: recorder})
	st := State{
		Files:          sampleFiles(),
		RequestedTotal: 10,
		LLM:            recorder,
		Evidence: map[string][]EvidenceItem{"t1:notes.txt": {
			{Topic: "осмос", Context: "[1] source: a#chunk0\nосмос"},
			{Topic: "мембраны", Context: "[1] source: a#chunk1\nмембраны"},
		}},
		Metrics: Metrics{},
	}

	out, err := p.QGen(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, out.Questions["t1:notes.txt"], 2)
	require.Len(t, prompts, 2)
	require.NotContains(t, prompts[0], "НЕ ПОВТОРЯЙ")
	require.Contains(t, prompts[1], "НЕ ПОВТОРЯЙ ЭТИ ИДЕИ:\n- Что такое осмос?")
}

type promptRecorder struct {
	inner   providers.LLMProvider
	prompts *[]string
}

func (r *promptRecorder) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	*r.prompts = append(*r.prompts, req.Prompt)
	return r.inner.Generate(ctx, req)
}

func TestVerifierTagsUnsourced(t *testing.T) {
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}})
	in := State{Questions: map[string][]Question{"f": {
		{Question: "a?", Tags: []string{"x"}, Sources: []string{"s"}},
		{Question: "b?", Tags: []string{"x"}},
	}}, Metrics: Metrics{}}

	out, err := p.Verifier(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, out.Questions["f"][0].Tags)
	require.Equal(t, []string{"x", "unverified"}, out.Questions["f"][1].Tags)
	require.Equal(t, []string{"x"}, in.Questions["f"][1].Tags)
}

var distinctQuestions = []string{
	"Что такое фотосинтез?",
	"Где находятся митохондрии?",
	"Какую функцию выполняют рибосомы?",
	"Из чего состоит клеточная мембрана?",
	"Чем отличается митоз от мейоза?",
	"Зачем растениям хлорофилл?",
	"Как работает натрий-калиевый насос?",
	"Почему вода поднимается по ксилеме?",
	"Кто открыл структуру ДНК?",
	"Сколько хромосом у человека?",
}

func openItems(from, to int) []Question {
	out := make([]Question, 0, to-from)
	for _, q := range distinctQuestions[from:to] {
		out = append(out, Question{Type: TypeOpen, Question: q, Answer: "ответ на " + q, Sources: []string{"s"}})
	}
	return out
}

func TestMixerReturnsExactCountAllOpen(t *testing.T) {
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}})
	ci := 1
	second := openItems(5, 10)
	second[0] = Question{Type: TypeMCQ, Question: second[0].Question, Options: []string{"a", "b", "c", "d"}, CorrectIndex: &ci, Answer: "b"}
	st := State{
		Files:          []FileInput{{FileID: "f1"}, {FileID: "f2"}},
		RequestedTotal: 6,
		Difficulty:     "easy",
		Questions:      map[string][]Question{"f1": openItems(0, 5), "f2": second},
		Metrics:        Metrics{},
	}

	out, err := p.Mixer(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, out.Result, 6)
	for _, q := range out.Result {
		require.Equal(t, TypeOpen, q.Type)
		require.Nil(t, q.Options)
		require.Equal(t, "easy", q.Difficulty)
	}
	require.Equal(t, map[string]int{"f1": 5, "f2": 5}, out.Metrics["per_file_counts"])
	require.Equal(t, 6, out.Metrics["final_count"])
}

func TestMixerDropsDuplicatesAndGeneric(t *testing.T) {
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}})
	items := openItems(0, 2)
	items = append(items,
		Question{Type: TypeOpen, Question: "что такое фотосинтез", Answer: "процесс", Sources: []string{"s"}},
		Question{Type: TypeOpen, Question: "Вопрос без ответа?", Sources: []string{"s"}},
	)
	st := State{
		Files:          []FileInput{{FileID: "f"}},
		RequestedTotal: 10,
		Questions:      map[string][]Question{"f": items},
		Metrics:        Metrics{},
	}

	out, err := p.Mixer(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, out.Result, 2)
	require.InDelta(t, 1.0/3.0, out.Metrics["dedupe_drop_rate"], 1e-9)
}

func TestMixerBackfillsOnlyUnconsideredCandidates(t *testing.T) {
	p := newTestPipeline(t, Settings{}, Deps{LLM: &fakeLLM{}})
	item := func(q string) Question {
		return Question{Type: TypeOpen, Question: q, Answer: "ответ: " + q, Sources: []string{"s"}}
	}
	st := State{
		Files:          []FileInput{{FileID: "f1"}, {FileID: "f2"}},
		RequestedTotal: 2,
		Questions: map[string][]Question{
			"f1": {item("Что такое фотосинтез?"), item("что такое фотосинтез"), item("Где находятся рибосомы клетки?")},
			"f2": {item("ЧТО ТАКОЕ ФОТОСИНТЕЗ?!"), item("Что такое  фотосинтез..."), item("что такое, фотосинтез?")},
		},
		Metrics: Metrics{},
	}

	out, err := p.Mixer(context.Background(), st)
	require.NoError(t, err)
	got := make([]string, 0, len(out.Result))
	for _, q := range out.Result {
		got = append(got, q.Question)
	}
	require.Equal(t, []string{"Что такое фотосинтез?", "Где находятся рибосомы клетки?"}, got)
	require.InDelta(t, 3.0/4.0, out.Metrics["dedupe_drop_rate"], 1e-9)
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.observeStage("setup", 0)
		c.observeRun("ok", 1, 1)
		c.observeFallback()
	})
}
