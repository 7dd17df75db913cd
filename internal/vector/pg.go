package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"qaforge/internal/providers"
	"qaforge/internal/storage"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ChunkWriter persists embedded chunks for a collection.
type ChunkWriter interface {
	CountCollection(ctx context.Context, collection string) (int, error)
	UpsertChunks(ctx context.Context, chunks []storage.ChunkRecord) error
}

// PGIndex keeps collections in the pgvector backed chunks table, so an
// unchanged file is embedded only once across runs.
type PGIndex struct {
	q   Queryer
	w   ChunkWriter
	emb providers.EmbeddingProvider
	dim int
}

func NewPGIndex(q Queryer, w ChunkWriter, emb providers.EmbeddingProvider, dim int) *PGIndex {
	return &PGIndex{q: q, w: w, emb: emb, dim: dim}
}

func (p *PGIndex) Open(ctx context.Context, collection string, docs []Document) (Store, error) {
	have, err := p.w.CountCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if have < len(docs) {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text
		}
		vecs, err := embedAll(ctx, p.emb, p.dim, texts)
		if err != nil {
			return nil, err
		}
		recs := make([]storage.ChunkRecord, len(docs))
		for i, d := range docs {
			recs[i] = storage.ChunkRecord{
				Collection: collection,
				ChunkHash:  d.ChunkHash,
				Source:     d.Source,
				ChunkIndex: d.Index,
				Text:       d.Text,
				Embedding:  ToLiteral(vecs[i]),
			}
		}
		if err := p.w.UpsertChunks(ctx, recs); err != nil {
			return nil, err
		}
	}
	return &pgStore{idx: p, collection: collection}, nil
}

type pgStore struct {
	idx        *PGIndex
	collection string
}

func (s *pgStore) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := embedQuery(ctx, s.idx.emb, s.idx.dim, query)
	if err != nil {
		return nil, err
	}
	rows, err := s.idx.q.Query(ctx, `
SELECT chunk_hash, source, chunk_index, text
FROM vector_chunks
WHERE collection = $1
ORDER BY embedding <=> $2::vector
LIMIT $3`, s.collection, ToLiteral(vec), k)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0, k)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ChunkHash, &d.Source, &d.Index, &d.Text); err != nil {
			return nil, fmt.Errorf("scan vector chunk: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}
