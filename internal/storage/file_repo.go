package storage

import (
	"context"
	"fmt"

	"qaforge/internal/models"
)

type FileRepo struct {
	db *DB
}

func NewFileRepo(db *DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Insert(ctx context.Context, f models.File) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO files (topic_id, original_filename, mime_type, size_bytes, storage_path, sha256)
VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6,''))
RETURNING id::text`,
		f.TopicID, f.OriginalFilename, f.MimeType, f.SizeBytes, f.StoragePath, f.SHA256).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

// ListByTopic returns the topic's live files in upload order.
func (r *FileRepo) ListByTopic(ctx context.Context, topicID string) ([]models.File, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, topic_id::text, original_filename, mime_type, size_bytes, storage_path, COALESCE(sha256,'')
FROM files
WHERE topic_id=$1::uuid AND deleted_at IS NULL
ORDER BY created_at ASC`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := make([]models.File, 0)
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.FileID, &f.TopicID, &f.OriginalFilename, &f.MimeType, &f.SizeBytes, &f.StoragePath, &f.SHA256); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}
