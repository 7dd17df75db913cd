package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"qaforge/internal/activities"
	"qaforge/internal/models"
	"qaforge/internal/qa"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

// jobFake backs every activity with canned results and records what the
// workflow wrote back to the job.
type jobFake struct {
	mu sync.Mutex

	job       models.Job
	files     []models.File
	chunked   []qa.FileInput
	generated activities.GenerateQuestionsOutput
	cancelAt  int

	stages    []string
	failed    string
	completed map[string]string
	exported  int
	webhooks  int
	checks    int
	finalize  activities.FinalizeQuestionsInput
}

func newJobFake() *jobFake {
	answers := false
	return &jobFake{
		job: models.Job{
			JobID:   "job-1",
			TopicID: "topic-1",
			UserID:  7,
			Status:  models.JobStatusQueued,
			Params:  models.JobParams{NumberOfQuestions: 2, IncludeAnswers: &answers},
		},
		files: []models.File{{FileID: "topic-1:notes.txt", TopicID: "topic-1", OriginalFilename: "notes.txt"}},
		chunked: []qa.FileInput{{
			FileID:   "topic-1:notes.txt",
			FileName: "notes.txt",
			Chunks:   []qa.Chunk{{Text: "photosynthesis converts light", Source: "notes.txt"}},
		}},
		generated: activities.GenerateQuestionsOutput{
			Questions: []qa.Question{
				{Type: qa.TypeOpen, Question: "What converts light?", Answer: "Photosynthesis"},
				{Type: qa.TypeOpen, Question: "Where does it happen?", Answer: "Chloroplasts"},
			},
			LLMCalls: 4,
		},
	}
}

func (f *jobFake) register(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "LoadJobActivity", func(context.Context, activities.JobRef) (activities.LoadJobOutput, error) {
		return activities.LoadJobOutput{Job: f.job, Files: f.files}, nil
	})
	registerActivityName(env, "CheckCancelledActivity", func(context.Context, activities.JobRef) (activities.CheckCancelledOutput, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.checks++
		return activities.CheckCancelledOutput{Cancelled: f.cancelAt > 0 && f.checks >= f.cancelAt}, nil
	})
	registerActivityName(env, "UpdateJobActivity", func(_ context.Context, in activities.UpdateJobInput) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stages = append(f.stages, in.Stage)
		return nil
	})
	registerActivityName(env, "FailJobActivity", func(_ context.Context, in activities.FailJobInput) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.failed = in.Message
		return nil
	})
	registerActivityName(env, "CompleteJobActivity", func(_ context.Context, in activities.CompleteJobInput) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.completed = in.ResultPaths
		return nil
	})
	registerActivityName(env, "CancelJobActivity", func(context.Context, activities.JobRef) error { return nil })
	registerActivityName(env, "ExtractFilesActivity", func(_ context.Context, in activities.ExtractFilesInput) (activities.ExtractFilesOutput, error) {
		out := activities.ExtractFilesOutput{}
		for _, file := range in.Files {
			out.Payloads = append(out.Payloads, activities.FilePayload{FileName: file.OriginalFilename, Text: "text"})
		}
		return out, nil
	})
	registerActivityName(env, "ChunkFilesActivity", func(context.Context, activities.ChunkFilesInput) (activities.ChunkFilesOutput, error) {
		return activities.ChunkFilesOutput{Files: f.chunked}, nil
	})
	registerActivityName(env, "GenerateQuestionsActivity", func(context.Context, activities.GenerateQuestionsInput) (activities.GenerateQuestionsOutput, error) {
		return f.generated, nil
	})
	registerActivityName(env, "FinalizeQuestionsActivity", func(_ context.Context, in activities.FinalizeQuestionsInput) (activities.FinalizeQuestionsOutput, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.finalize = in
		return activities.FinalizeQuestionsOutput{Questions: qa.Finalize(in.Questions, in.Total, in.IncludeAnswers)}, nil
	})
	registerActivityName(env, "ExportQuestionsActivity", func(_ context.Context, in activities.ExportQuestionsInput) (activities.ExportQuestionsOutput, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.exported++
		return activities.ExportQuestionsOutput{Path: "/out/" + in.TopicID + "/questions_" + in.JobID + ".json"}, nil
	})
	registerActivityName(env, "NotifyWebhookActivity", func(context.Context, activities.WebhookInput) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.webhooks++
		return nil
	})
}

func runJob(t *testing.T, f *jobFake, setup func(env *testsuite.TestWorkflowEnvironment)) (*testsuite.TestWorkflowEnvironment, GenerationJobResult) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GenerationJobWorkflow)
	f.register(env)
	if setup != nil {
		setup(env)
	}
	env.ExecuteWorkflow(GenerationJobWorkflow, GenerationJobInput{JobID: "job-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out GenerationJobResult
	require.NoError(t, env.GetWorkflowResult(&out))
	return env, out
}

func TestGenerationJobWorkflowSuccess(t *testing.T) {
	f := newJobFake()
	env, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusDone, out.Status)
	require.Equal(t, 2, out.Questions)
	require.Equal(t, "/out/topic-1/questions_job-1.json", out.ResultPath)
	require.Equal(t, []string{StageExtracting, StageChunking, StageGenerating, StageDeduping, StageExporting}, f.stages)
	require.Equal(t, map[string]string{"json": out.ResultPath}, f.completed)
	require.Equal(t, 1, f.webhooks)
	require.Empty(t, f.failed)

	require.Equal(t, 2, f.finalize.Total)
	require.False(t, f.finalize.IncludeAnswers)

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress JobProgress
	require.NoError(t, val.Get(&progress))
	require.Equal(t, models.JobStatusDone, progress.Status)
	require.Equal(t, 100, progress.Progress)
	require.Equal(t, 4, progress.LLMCalls)
}

func TestGenerationJobWorkflowNoFiles(t *testing.T) {
	f := newJobFake()
	f.files = nil
	_, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusFailed, out.Status)
	require.Equal(t, "No files available for generation", f.failed)
	require.Empty(t, f.stages)
}

func TestGenerationJobWorkflowNoExtractableText(t *testing.T) {
	f := newJobFake()
	f.chunked = nil
	_, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusFailed, out.Status)
	require.Equal(t, "No extractable text", out.Error)
	require.Equal(t, []string{StageExtracting, StageChunking}, f.stages)
	require.Zero(t, f.exported)
}

func TestGenerationJobWorkflowCancelledBeforeStart(t *testing.T) {
	f := newJobFake()
	f.job.Status = models.JobStatusCancelled
	_, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusCancelled, out.Status)
	require.Empty(t, f.stages)
	require.Empty(t, f.failed)
}

func TestGenerationJobWorkflowCancelledDuringGeneration(t *testing.T) {
	f := newJobFake()
	f.generated.Cancelled = true
	_, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusCancelled, out.Status)
	require.Zero(t, f.exported)
	require.Nil(t, f.completed)
	require.Zero(t, f.webhooks)
}

func TestGenerationJobWorkflowCancelledBeforeExport(t *testing.T) {
	f := newJobFake()
	// Checks run before start, before generation, after generation and
	// before export.
	f.cancelAt = 4
	_, out := runJob(t, f, nil)

	require.Equal(t, models.JobStatusCancelled, out.Status)
	require.Equal(t, []string{StageExtracting, StageChunking, StageGenerating, StageDeduping}, f.stages)
	require.Zero(t, f.exported)
}

func TestGenerationJobWorkflowGenerationErrorFailsJob(t *testing.T) {
	f := newJobFake()
	env, out := runJob(t, f, func(env *testsuite.TestWorkflowEnvironment) {
		env.OnActivity("GenerateQuestionsActivity", mock.Anything, mock.Anything).
			Return(activities.GenerateQuestionsOutput{}, errors.New("provider quota exhausted"))
	})

	require.Equal(t, models.JobStatusFailed, out.Status)
	require.Contains(t, out.Error, "provider quota exhausted")
	require.Equal(t, out.Error, f.failed)
	require.Zero(t, f.exported)

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress JobProgress
	require.NoError(t, val.Get(&progress))
	require.Equal(t, models.JobStatusFailed, progress.Status)
	require.Equal(t, StageDone, progress.Stage)
}

func TestGenerationJobWorkflowWebhookFailureIgnored(t *testing.T) {
	f := newJobFake()
	_, out := runJob(t, f, func(env *testsuite.TestWorkflowEnvironment) {
		env.OnActivity("NotifyWebhookActivity", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	})

	require.Equal(t, models.JobStatusDone, out.Status)
	require.NotNil(t, f.completed)
}

func TestStageProgress(t *testing.T) {
	require.Equal(t, 15, StageProgress(StageExtracting))
	require.Equal(t, 65, StageProgress(StageGenerating))
	require.Equal(t, 100, StageProgress(StageDone))
	require.Zero(t, StageProgress("unknown"))
}
