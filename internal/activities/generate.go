package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"qaforge/internal/models"
	"qaforge/internal/qa"
)

// GenerateQuestionsActivity runs the job's pipeline. Cancellation, from the
// workflow or from the jobs table, ends the run early with Cancelled set.
func (a *Activities) GenerateQuestionsActivity(ctx context.Context, in GenerateQuestionsInput) (GenerateQuestionsOutput, error) {
	pipeline, err := a.newPipeline(in.JobID)
	if err != nil {
		return GenerateQuestionsOutput{}, fmt.Errorf("build pipeline: %w", err)
	}
	cancel := a.cancelChecker(ctx, in.JobID)
	out, err := GenerateWithMode(ctx, pipeline, in, cancel, a.logger.With(zap.String("job_id", in.JobID)))
	if err != nil {
		return GenerateQuestionsOutput{}, err
	}
	if !out.Cancelled && cancel() {
		out = GenerateQuestionsOutput{Cancelled: true, LLMCalls: out.LLMCalls}
	}
	return out, nil
}

// GenerateWithMode runs pipeline over in.Files at once (merged mode) or file
// by file (per_file mode), asking each file for max(3, total/files) questions
// before merging. cancel may be nil.
func GenerateWithMode(ctx context.Context, pipeline *qa.Pipeline, in GenerateQuestionsInput, cancel func() bool, logger *zap.Logger) (GenerateQuestionsOutput, error) {
	if cancel == nil {
		cancel = func() bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var out GenerateQuestionsOutput
	if in.Mode != models.ModePerFile {
		items, metrics, err := pipeline.Generate(ctx, in.Files, in.Total, in.Difficulty, qa.WithCancel(cancel))
		if err != nil {
			return GenerateQuestionsOutput{}, err
		}
		logger.Info("pipeline metrics", zap.Any("metrics", metrics))
		out.LLMCalls = llmCalls(metrics)
		out.Questions = items
		return out, nil
	}

	perFile := max(3, in.Total/max(1, len(in.Files)))
	outputs := make([][]qa.Question, 0, len(in.Files))
	for _, f := range in.Files {
		if cancel() {
			return GenerateQuestionsOutput{Cancelled: true, LLMCalls: out.LLMCalls}, nil
		}
		items, metrics, err := pipeline.Generate(ctx, []qa.FileInput{f}, perFile, in.Difficulty, qa.WithCancel(cancel))
		if err != nil {
			return GenerateQuestionsOutput{}, fmt.Errorf("generate for %s: %w", f.FileName, err)
		}
		logger.Info("pipeline metrics", zap.String("file", f.FileName), zap.Any("metrics", metrics))
		out.LLMCalls += llmCalls(metrics)
		outputs = append(outputs, items)
	}
	out.Questions = qa.MergePerFileOutputs(outputs, in.Total)
	return out, nil
}

func (a *Activities) FinalizeQuestionsActivity(ctx context.Context, in FinalizeQuestionsInput) (FinalizeQuestionsOutput, error) {
	_ = ctx
	return FinalizeQuestionsOutput{Questions: qa.Finalize(in.Questions, in.Total, in.IncludeAnswers)}, nil
}

func llmCalls(m qa.Metrics) int {
	n, _ := m["llm_calls"].(int)
	return n
}

// cancelChecker heartbeats on every poll and reads the job status at most
// once per cancelPoll. Once cancelled it stays cancelled.
func (a *Activities) cancelChecker(ctx context.Context, jobID string) func() bool {
	var (
		mu        sync.Mutex
		last      time.Time
		cancelled bool
	)
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		if cancelled {
			return true
		}
		activity.RecordHeartbeat(ctx, jobID)
		if ctx.Err() != nil {
			cancelled = true
			return true
		}
		if time.Since(last) < a.cancelPoll {
			return false
		}
		last = time.Now()
		status, err := a.jobs.Status(ctx, jobID)
		if err != nil {
			a.logger.Warn("job status check failed", zap.String("job_id", jobID), zap.Error(err))
			return false
		}
		cancelled = status == models.JobStatusCancelled
		return cancelled
	}
}
