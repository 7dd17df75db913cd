package qa

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"qaforge/internal/filter"
)

// Evidence retrieves the most relevant chunks per planned topic, from the
// file's vector store when there is one and by token overlap otherwise.
func (p *Pipeline) Evidence(ctx context.Context, st State) (State, error) {
	out := st.clone()
	evidence := map[string][]EvidenceItem{}
	for _, f := range st.Files {
		if st.cancelled(ctx) {
			return st.stopped("evidence"), nil
		}
		chunks := st.Normalized[f.FileID]
		if len(chunks) > p.settings.MaxChunks {
			chunks = chunks[:p.settings.MaxChunks]
		}
		topics := st.Topics[f.FileID]
		if len(topics) == 0 {
			topics = []string{defaultTopic}
		}
		store := st.Stores[f.FileID]
		if store == nil && len(chunks) == 0 {
			evidence[f.FileID] = []EvidenceItem{}
			continue
		}
		if store == nil {
			out.Metrics["retrieval_mode"] = "lexical"
		} else {
			out.Metrics.setDefault("retrieval_mode", "vector")
		}

		lex := newLexicalIndex(chunks)
		items := make([]EvidenceItem, 0, len(topics))
		for _, topic := range topics {
			if st.cancelled(ctx) {
				return st.stopped("evidence"), nil
			}
			var selected []Chunk
			if store == nil {
				selected = lex.top(topic, p.settings.TopK)
			} else {
				docs, err := store.Search(ctx, topic, p.settings.TopK)
				if err != nil {
					p.logger.Warn("vector search failed, using lexical match",
						zap.String("file_id", f.FileID), zap.String("topic", topic), zap.Error(err))
					out.Metrics["embeddings_error"] = err.Error()
					selected = lex.top(topic, p.settings.TopK)
				} else {
					if len(docs) > p.settings.TopK {
						docs = docs[:p.settings.TopK]
					}
					for _, d := range docs {
						selected = append(selected, Chunk{Text: d.Text, Source: d.Source, Index: d.Index})
					}
				}
			}
			if len(selected) == 0 {
				continue
			}
			items = append(items, EvidenceItem{Topic: topic, Context: contextPacket(selected, p.settings.ContextMaxChars)})
		}
		evidence[f.FileID] = items
	}
	out.Evidence = evidence
	return out, nil
}

type lexicalIndex struct {
	chunks []Chunk
	tokens []map[string]struct{}
}

func newLexicalIndex(chunks []Chunk) *lexicalIndex {
	idx := &lexicalIndex{chunks: chunks, tokens: make([]map[string]struct{}, len(chunks))}
	for i, c := range chunks {
		idx.tokens[i] = tokenSet(c.Text)
	}
	return idx
}

// top ranks chunks by how many topic tokens they contain. Chunks sharing no
// token are skipped; with nothing left the first k chunks are used.
func (l *lexicalIndex) top(topic string, k int) []Chunk {
	want := tokenSet(topic)
	first := l.chunks[:min(k, len(l.chunks))]
	if len(want) == 0 {
		return first
	}
	type scored struct {
		i     int
		score int
	}
	ranked := make([]scored, 0, len(l.chunks))
	for i, toks := range l.tokens {
		n := 0
		for t := range want {
			if _, ok := toks[t]; ok {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, scored{i, n})
		}
	}
	if len(ranked) == 0 {
		return first
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	out := make([]Chunk, 0, min(k, len(ranked)))
	for _, r := range ranked[:min(k, len(ranked))] {
		out = append(out, l.chunks[r.i])
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(filter.NormalizeText(s)) {
		out[t] = struct{}{}
	}
	return out
}

// contextPacket renders chunks as numbered, source labelled excerpts.
func contextPacket(chunks []Chunk, maxChars int) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		src := c.Source
		if src == "" {
			src = "unknown"
		}
		text := strings.TrimSpace(truncateRunes(c.Text, maxChars))
		parts = append(parts, fmt.Sprintf("[%d] source: %s#chunk%d\n%s", i+1, src, c.Index, text))
	}
	return strings.Join(parts, "\n\n")
}
