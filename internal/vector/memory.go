package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"qaforge/internal/providers"
)

// MemoryIndex keeps collections in process memory. Reopening a collection
// name returns the already built store.
type MemoryIndex struct {
	emb providers.EmbeddingProvider
	dim int

	mu          sync.Mutex
	collections map[string]*memoryStore
}

func NewMemoryIndex(emb providers.EmbeddingProvider, dim int) *MemoryIndex {
	return &MemoryIndex{emb: emb, dim: dim, collections: map[string]*memoryStore{}}
}

func (m *MemoryIndex) Open(ctx context.Context, collection string, docs []Document) (Store, error) {
	m.mu.Lock()
	if s, ok := m.collections[collection]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := embedAll(ctx, m.emb, m.dim, texts)
	if err != nil {
		return nil, err
	}
	s := &memoryStore{emb: m.emb, dim: m.dim, docs: append([]Document(nil), docs...), vecs: vecs}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.collections[collection]; ok {
		return existing, nil
	}
	m.collections[collection] = s
	return s, nil
}

type memoryStore struct {
	emb  providers.EmbeddingProvider
	dim  int
	docs []Document
	vecs [][]float32
}

func (s *memoryStore) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 || len(s.docs) == 0 {
		return nil, nil
	}
	q, err := embedQuery(ctx, s.emb, s.dim, query)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(s.docs))
	scores := make([]float64, len(s.docs))
	for i := range s.docs {
		order[i] = i
		scores[i] = cosine(q, s.vecs[i])
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	out := make([]Document, 0, min(k, len(order)))
	for _, i := range order[:min(k, len(order))] {
		out = append(out, s.docs[i])
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
