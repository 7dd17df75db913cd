package storage

import (
	"context"
	"fmt"
)

// ChunkRecord is one embedded chunk of a vector collection. Embedding is
// already in pgvector text form.
type ChunkRecord struct {
	Collection string
	ChunkHash  string
	Source     string
	ChunkIndex int
	Text       string
	Embedding  string
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO vector_chunks (collection, chunk_hash, source, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (collection, chunk_hash)
DO UPDATE SET
  source = EXCLUDED.source,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding`,
			c.Collection, c.ChunkHash, c.Source, c.ChunkIndex, c.Text, c.Embedding,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkHash, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) CountCollection(ctx context.Context, collection string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM vector_chunks WHERE collection=$1`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count collection %s: %w", collection, err)
	}
	return n, nil
}
