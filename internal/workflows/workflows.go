package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"qaforge/internal/activities"
	"qaforge/internal/models"
)

const (
	msgNoFiles = "No files available for generation"
	msgNoText  = "No extractable text"
)

// GenerationJobWorkflow runs one queued generation job end to end: extract,
// chunk, generate, dedupe, export. Progress is written to the job row and is
// also available through the GetProgress query. A failed job completes the
// workflow normally with Status "failed"; only an unknown job fails it.
func GenerationJobWorkflow(ctx workflow.Context, input GenerationJobInput) (GenerationJobResult, error) {
	progress := JobProgress{JobID: input.JobID, Status: models.JobStatusQueued}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (JobProgress, error) {
		return progress, nil
	}); err != nil {
		return GenerationJobResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	r := &jobRun{ctx: ctx, jobID: input.JobID, progress: &progress}

	var loaded activities.LoadJobOutput
	if err := workflow.ExecuteActivity(ctx, "LoadJobActivity", activities.JobRef{JobID: input.JobID}).Get(ctx, &loaded); err != nil {
		return GenerationJobResult{}, err
	}
	job := loaded.Job
	if job.Status == models.JobStatusCancelled {
		workflow.GetLogger(ctx).Info("job cancelled before start", "job_id", input.JobID)
		return r.cancelled(false)
	}
	if len(loaded.Files) == 0 {
		return r.fail(msgNoFiles)
	}
	if stop, err := r.checkCancelled(); stop {
		return r.stopped(err)
	}

	if err := r.stage(StageExtracting); err != nil {
		return r.stopped(err)
	}
	var extracted activities.ExtractFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractFilesActivity", activities.ExtractFilesInput{Files: loaded.Files}).Get(ctx, &extracted); err != nil {
		return r.stopped(err)
	}

	if err := r.stage(StageChunking); err != nil {
		return r.stopped(err)
	}
	var chunked activities.ChunkFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkFilesActivity", activities.ChunkFilesInput{TopicID: job.TopicID, Payloads: extracted.Payloads}).Get(ctx, &chunked); err != nil {
		return r.stopped(err)
	}
	if stop, err := r.checkCancelled(); stop {
		return r.stopped(err)
	}
	if len(chunked.Files) == 0 {
		return r.fail(msgNoText)
	}

	if err := r.stage(StageGenerating); err != nil {
		return r.stopped(err)
	}
	// The pipeline retries provider calls itself; retrying the whole
	// activity would redo every call.
	genCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	params := job.Params.WithDefaults()
	var generated activities.GenerateQuestionsOutput
	if err := workflow.ExecuteActivity(genCtx, "GenerateQuestionsActivity", activities.GenerateQuestionsInput{
		JobID:      input.JobID,
		Files:      chunked.Files,
		Total:      params.NumberOfQuestions,
		Difficulty: params.Difficulty,
		Mode:       params.Mode,
	}).Get(ctx, &generated); err != nil {
		return r.stopped(err)
	}
	progress.LLMCalls = generated.LLMCalls
	if generated.Cancelled {
		return r.cancelled(false)
	}
	if stop, err := r.checkCancelled(); stop {
		return r.stopped(err)
	}

	if err := r.stage(StageDeduping); err != nil {
		return r.stopped(err)
	}
	var final activities.FinalizeQuestionsOutput
	if err := workflow.ExecuteActivity(ctx, "FinalizeQuestionsActivity", activities.FinalizeQuestionsInput{
		Questions:      generated.Questions,
		Total:          params.NumberOfQuestions,
		IncludeAnswers: params.Answers(),
	}).Get(ctx, &final); err != nil {
		return r.stopped(err)
	}
	if stop, err := r.checkCancelled(); stop {
		return r.stopped(err)
	}

	if err := r.stage(StageExporting); err != nil {
		return r.stopped(err)
	}
	var exported activities.ExportQuestionsOutput
	if err := workflow.ExecuteActivity(ctx, "ExportQuestionsActivity", activities.ExportQuestionsInput{
		JobID:     input.JobID,
		TopicID:   job.TopicID,
		Questions: final.Questions,
	}).Get(ctx, &exported); err != nil {
		return r.stopped(err)
	}
	if err := workflow.ExecuteActivity(ctx, "CompleteJobActivity", activities.CompleteJobInput{
		JobID:       input.JobID,
		ResultPaths: map[string]string{"json": exported.Path},
	}).Get(ctx, nil); err != nil {
		return r.stopped(err)
	}
	progress.Status = models.JobStatusDone
	progress.Stage = StageDone
	progress.Progress = StageProgress(StageDone)

	if err := workflow.ExecuteActivity(ctx, "NotifyWebhookActivity", activities.WebhookInput{
		JobID:      input.JobID,
		TopicID:    job.TopicID,
		UserID:     job.UserID,
		TelegramID: job.TelegramID,
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("job webhook failed", "job_id", input.JobID, "error", err)
	}

	return GenerationJobResult{
		JobID:      input.JobID,
		Status:     models.JobStatusDone,
		ResultPath: exported.Path,
		Questions:  len(final.Questions),
	}, nil
}

type jobRun struct {
	ctx      workflow.Context
	jobID    string
	progress *JobProgress
}

func (r *jobRun) stage(name string) error {
	r.progress.Status = models.JobStatusRunning
	r.progress.Stage = name
	r.progress.Progress = StageProgress(name)
	return workflow.ExecuteActivity(r.ctx, "UpdateJobActivity", activities.UpdateJobInput{
		JobID:    r.jobID,
		Stage:    name,
		Progress: r.progress.Progress,
	}).Get(r.ctx, nil)
}

// checkCancelled reports whether the run must stop, either because the job
// row says cancelled or because the status check itself failed.
func (r *jobRun) checkCancelled() (bool, error) {
	var out activities.CheckCancelledOutput
	if err := workflow.ExecuteActivity(r.ctx, "CheckCancelledActivity", activities.JobRef{JobID: r.jobID}).Get(r.ctx, &out); err != nil {
		return true, err
	}
	return out.Cancelled, nil
}

// stopped ends the run after err, or after an observed cancellation when err
// is nil.
func (r *jobRun) stopped(err error) (GenerationJobResult, error) {
	if err == nil {
		return r.cancelled(false)
	}
	if temporal.IsCanceledError(err) {
		return r.cancelled(true)
	}
	return r.fail(errorMessage(err))
}

func (r *jobRun) cancelled(record bool) (GenerationJobResult, error) {
	r.progress.Status = models.JobStatusCancelled
	if record || r.ctx.Err() != nil {
		// The workflow itself was cancelled, so the job row may not know yet.
		dctx, _ := workflow.NewDisconnectedContext(r.ctx)
		if err := workflow.ExecuteActivity(dctx, "CancelJobActivity", activities.JobRef{JobID: r.jobID}).Get(dctx, nil); err != nil {
			workflow.GetLogger(r.ctx).Warn("record job cancellation failed", "job_id", r.jobID, "error", err)
		}
	}
	return GenerationJobResult{JobID: r.jobID, Status: models.JobStatusCancelled}, nil
}

func (r *jobRun) fail(message string) (GenerationJobResult, error) {
	r.progress.Status = models.JobStatusFailed
	r.progress.Stage = StageDone
	r.progress.Progress = StageProgress(StageDone)
	r.progress.Error = message
	if err := workflow.ExecuteActivity(r.ctx, "FailJobActivity", activities.FailJobInput{JobID: r.jobID, Message: message}).Get(r.ctx, nil); err != nil {
		return GenerationJobResult{}, err
	}
	return GenerationJobResult{JobID: r.jobID, Status: models.JobStatusFailed, Error: message}, nil
}

func errorMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
