package storage

import (
	"context"
	"fmt"
)

// TopicRepo owns the users and topics rows that jobs and files hang off.
type TopicRepo struct {
	db *DB
}

func NewTopicRepo(db *DB) *TopicRepo {
	return &TopicRepo{db: db}
}

// EnsureUser returns the user for telegramID, creating it on first use. A nil
// telegramID always creates an anonymous user.
func (r *TopicRepo) EnsureUser(ctx context.Context, telegramID *int64) (int64, error) {
	var id int64
	var err error
	if telegramID == nil {
		err = r.db.Pool.QueryRow(ctx, `INSERT INTO users (telegram_id) VALUES (NULL) RETURNING id`).Scan(&id)
	} else {
		err = r.db.Pool.QueryRow(ctx, `
INSERT INTO users (telegram_id) VALUES ($1)
ON CONFLICT (telegram_id) DO UPDATE SET telegram_id=EXCLUDED.telegram_id
RETURNING id`, *telegramID).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

func (r *TopicRepo) Create(ctx context.Context, userID int64, title string) (string, error) {
	var id string
	if err := r.db.Pool.QueryRow(ctx, `
INSERT INTO topics (user_id, title) VALUES ($1, $2)
RETURNING id::text`, userID, title).Scan(&id); err != nil {
		return "", fmt.Errorf("create topic: %w", err)
	}
	return id, nil
}

// Owner returns the user that owns topicID.
func (r *TopicRepo) Owner(ctx context.Context, topicID string) (int64, error) {
	var userID int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT user_id FROM topics WHERE id=$1::uuid`, topicID).Scan(&userID); err != nil {
		return 0, fmt.Errorf("topic owner: %w", err)
	}
	return userID, nil
}
