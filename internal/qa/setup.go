package qa

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"qaforge/internal/util"
	"qaforge/internal/vector"
)

var collectionUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Setup attaches the model handles for the run. Embedding failures never
// fail the run; they switch retrieval to lexical.
func (p *Pipeline) Setup(ctx context.Context, st State) (State, error) {
	out := st.clone()
	if out.LLM == nil {
		out.LLM = p.deps.LLM
	}
	switch {
	case !p.settings.UseEmbeddings:
		out.Embeddings = nil
		out.Metrics["embeddings_disabled"] = true
	case out.Embeddings == nil && p.deps.Embeddings == nil:
		out.Metrics["embeddings_disabled"] = true
	case out.Embeddings == nil:
		emb, err := p.deps.Embeddings(ctx)
		if err != nil {
			p.logger.Warn("embeddings init failed, falling back to lexical retrieval", zap.Error(err))
			out.Metrics["embeddings_error"] = err.Error()
			out.Metrics["embeddings_disabled"] = true
		} else {
			out.Embeddings = emb
		}
	}
	out.Metrics.setDefault("files", len(out.Files))
	return out, nil
}

// NormalizeChunks trims and redacts every chunk, dropping the ones left
// empty. Files without surviving chunks are absent from the result.
func (p *Pipeline) NormalizeChunks(ctx context.Context, st State) (State, error) {
	normalized := map[string][]Chunk{}
	redacted := 0
	for _, f := range st.Files {
		if st.cancelled(ctx) {
			return st.stopped("normalize_chunks"), nil
		}
		chunks := make([]Chunk, 0, len(f.Chunks))
		for _, c := range f.Chunks {
			text := strings.TrimSpace(c.Text)
			if text == "" {
				continue
			}
			text, n := p.deps.Redactor.Filter(text)
			redacted += n
			if text == "" {
				continue
			}
			source := c.Source
			if source == "" {
				source = f.FileName
			}
			chunks = append(chunks, Chunk{Text: text, Source: source, Index: c.Index})
		}
		if len(chunks) > 0 {
			normalized[f.FileID] = chunks
		}
	}
	out := st.clone()
	out.Normalized = normalized
	out.Metrics["normalized_files"] = len(normalized)
	out.Metrics["redacted_lines"] = redacted
	return out, nil
}

// IndexPerFile loads each file's chunks into its own vector collection. The
// collection name is derived from the content, so unchanged files map to the
// same collection across runs.
func (p *Pipeline) IndexPerFile(ctx context.Context, st State) (State, error) {
	out := st.clone()
	if st.Embeddings == nil {
		out.Metrics["indexed_files"] = 0
		return out, nil
	}
	index := p.deps.NewIndex(st.Embeddings)
	batchCtx := vector.WithBatchCheck(ctx, func() bool { return st.cancelled(ctx) })
	stores := map[string]vector.Store{}
	for _, f := range st.Files {
		if st.cancelled(ctx) {
			return st.stopped("index_per_file"), nil
		}
		chunks := st.Normalized[f.FileID]
		if len(chunks) == 0 {
			continue
		}
		docs := make([]vector.Document, len(chunks))
		hashes := make([]string, len(chunks))
		for i, c := range chunks {
			hashes[i] = chunkHash(f.FileID, c)
			docs[i] = vector.Document{Text: c.Text, Source: c.Source, Index: c.Index, ChunkHash: hashes[i]}
		}
		store, err := index.Open(batchCtx, collectionName(f.FileID, hashes), docs)
		if errors.Is(err, vector.ErrStopped) {
			return st.stopped("index_per_file"), nil
		}
		if err != nil {
			p.logger.Warn("embeddings unavailable, falling back to lexical retrieval",
				zap.String("file_id", f.FileID), zap.Error(err))
			out.Metrics["embeddings_error"] = err.Error()
			out.Metrics["embeddings_disabled"] = true
			out.Embeddings = nil
			break
		}
		stores[f.FileID] = store
	}
	out.Stores = stores
	out.Metrics["indexed_files"] = len(stores)
	return out, nil
}

func chunkHash(fileID string, c Chunk) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s|%s|%d|%s", fileID, c.Source, c.Index, c.Text)))
}

func collectionName(fileID string, hashes []string) string {
	sum := util.SHA256Hex([]byte(strings.Join(hashes, "")))
	safe := collectionUnsafe.ReplaceAllString(fileID, "_")
	if len(safe) > 32 {
		safe = safe[:32]
	}
	return "file_" + safe + "_" + sum[:8]
}
