package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qaforge/internal/models"
)

func (a *Activities) LoadJobActivity(ctx context.Context, in JobRef) (LoadJobOutput, error) {
	job, err := a.jobs.Get(ctx, in.JobID)
	if err != nil {
		return LoadJobOutput{}, err
	}
	job.Params = job.Params.WithDefaults()
	if job.Status == models.JobStatusCancelled {
		return LoadJobOutput{Job: job}, nil
	}
	files, err := a.files.ListByTopic(ctx, job.TopicID)
	if err != nil {
		return LoadJobOutput{}, fmt.Errorf("load files for topic %s: %w", job.TopicID, err)
	}
	return LoadJobOutput{Job: job, Files: files}, nil
}

func (a *Activities) CheckCancelledActivity(ctx context.Context, in JobRef) (CheckCancelledOutput, error) {
	status, err := a.jobs.Status(ctx, in.JobID)
	if err != nil {
		return CheckCancelledOutput{}, err
	}
	return CheckCancelledOutput{Cancelled: status == models.JobStatusCancelled}, nil
}

func (a *Activities) UpdateJobActivity(ctx context.Context, in UpdateJobInput) error {
	return a.jobs.UpdateStage(ctx, in.JobID, in.Stage, in.Progress)
}

func (a *Activities) FailJobActivity(ctx context.Context, in FailJobInput) error {
	a.logger.Warn("job failed", zap.String("job_id", in.JobID), zap.String("error", in.Message))
	return a.jobs.MarkFailed(ctx, in.JobID, in.Message)
}

func (a *Activities) CompleteJobActivity(ctx context.Context, in CompleteJobInput) error {
	return a.jobs.MarkDone(ctx, in.JobID, in.ResultPaths)
}

// CancelJobActivity records a cancellation that arrived through the workflow
// rather than through the jobs table.
func (a *Activities) CancelJobActivity(ctx context.Context, in JobRef) error {
	_, err := a.jobs.Cancel(ctx, in.JobID)
	return err
}
