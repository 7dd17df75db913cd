package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"qaforge/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, job models.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode job params: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO generation_jobs (id, topic_id, user_id, params_json, status, progress)
VALUES ($1::uuid, $2::uuid, $3, $4::jsonb, 'queued', 0)`,
		job.JobID, job.TopicID, job.UserID, string(params))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get loads a job together with its topic title and the owner's telegram id.
func (r *JobRepo) Get(ctx context.Context, jobID string) (models.Job, error) {
	var (
		job         models.Job
		params      []byte
		resultPaths []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT j.id::text, j.topic_id::text, COALESCE(t.title,''), j.user_id, u.telegram_id,
       j.params_json, j.status, COALESCE(j.stage,''), j.progress, j.result_paths,
       COALESCE(j.error_message,''), j.created_at, j.finished_at
FROM generation_jobs j
LEFT JOIN topics t ON t.id = j.topic_id
LEFT JOIN users u ON u.id = j.user_id
WHERE j.id = $1::uuid`, jobID).
		Scan(&job.JobID, &job.TopicID, &job.TopicTitle, &job.UserID, &job.TelegramID,
			&params, &job.Status, &job.Stage, &job.Progress, &resultPaths,
			&job.ErrorMessage, &job.CreatedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return models.Job{}, fmt.Errorf("decode job params: %w", err)
		}
	}
	if len(resultPaths) > 0 {
		if err := json.Unmarshal(resultPaths, &job.ResultPaths); err != nil {
			return models.Job{}, fmt.Errorf("decode job result paths: %w", err)
		}
	}
	return job, nil
}

func (r *JobRepo) Status(ctx context.Context, jobID string) (string, error) {
	var status string
	err := r.db.Pool.QueryRow(ctx, `SELECT status FROM generation_jobs WHERE id=$1::uuid`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

// UpdateStage records progress of a running job. Terminal jobs are left
// untouched so a late update cannot resurrect a cancelled job.
func (r *JobRepo) UpdateStage(ctx context.Context, jobID, stage string, progress int) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE generation_jobs SET status='running', stage=$2, progress=$3
WHERE id=$1::uuid AND status IN ('queued','running')`, jobID, stage, progress)
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	return nil
}

func (r *JobRepo) MarkFailed(ctx context.Context, jobID, message string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE generation_jobs SET status='failed', stage='done', progress=100, error_message=$2, finished_at=NOW()
WHERE id=$1::uuid AND status <> 'cancelled'`, jobID, message)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func (r *JobRepo) MarkDone(ctx context.Context, jobID string, resultPaths map[string]string) error {
	raw, err := json.Marshal(resultPaths)
	if err != nil {
		return fmt.Errorf("encode result paths: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
UPDATE generation_jobs SET status='done', stage='done', progress=100, result_paths=$2::jsonb, finished_at=NOW()
WHERE id=$1::uuid AND status <> 'cancelled'`, jobID, string(raw))
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// Cancel flags a queued or running job as cancelled and reports whether it
// did.
func (r *JobRepo) Cancel(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE generation_jobs SET status='cancelled', finished_at=NOW()
WHERE id=$1::uuid AND status IN ('queued','running')`, jobID)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
