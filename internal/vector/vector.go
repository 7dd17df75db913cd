// Package vector stores embedded chunks in named collections and answers
// nearest-neighbour queries over them.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qaforge/internal/providers"
)

const embedBatchSize = 32

// ErrStopped is returned by Open when the batch check asked to stop.
var ErrStopped = errors.New("vector: indexing stopped")

type batchCheckKey struct{}

// WithBatchCheck returns a context whose Open calls run stop before every
// embedding batch and give up with ErrStopped once it reports true.
func WithBatchCheck(ctx context.Context, stop func() bool) context.Context {
	return context.WithValue(ctx, batchCheckKey{}, stop)
}

type Document struct {
	Text      string
	Source    string
	Index     int
	ChunkHash string
}

// Index opens (building if needed) a collection of documents.
type Index interface {
	Open(ctx context.Context, collection string, docs []Document) (Store, error)
}

// Store is one opened collection.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

func embedAll(ctx context.Context, emb providers.EmbeddingProvider, dim int, texts []string) ([][]float32, error) {
	stop, _ := ctx.Value(batchCheckKey{}).(func() bool)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		if stop != nil && stop() {
			return nil, ErrStopped
		}
		end := min(start+embedBatchSize, len(texts))
		vecs, _, err := emb.Embed(ctx, providers.EmbedRequest{Operation: "index", Inputs: texts[start:end], Dimension: dim})
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed documents: got %d vectors for %d inputs", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func embedQuery(ctx context.Context, emb providers.EmbeddingProvider, dim int, query string) ([]float32, error) {
	vecs, _, err := emb.Embed(ctx, providers.EmbedRequest{Operation: "query", Inputs: []string{query}, Dimension: dim})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}

// ToLiteral renders v in pgvector's text format.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
