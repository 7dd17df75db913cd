package activities

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"qaforge/internal/config"
	"qaforge/internal/models"
	"qaforge/internal/qa"
)

// JobStore is the slice of storage.JobRepo the activities use.
type JobStore interface {
	Get(ctx context.Context, jobID string) (models.Job, error)
	Status(ctx context.Context, jobID string) (string, error)
	UpdateStage(ctx context.Context, jobID, stage string, progress int) error
	MarkFailed(ctx context.Context, jobID, message string) error
	MarkDone(ctx context.Context, jobID string, resultPaths map[string]string) error
	Cancel(ctx context.Context, jobID string) (bool, error)
}

type FileStore interface {
	ListByTopic(ctx context.Context, topicID string) ([]models.File, error)
}

// PipelineFactory builds the pipeline for one job.
type PipelineFactory func(jobID string) (*qa.Pipeline, error)

type Deps struct {
	Jobs        JobStore
	Files       FileStore
	NewPipeline PipelineFactory
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

type Activities struct {
	cfg         config.Config
	jobs        JobStore
	files       FileStore
	newPipeline PipelineFactory
	http        *http.Client
	logger      *zap.Logger
	cancelPoll  time.Duration
	readFile    func(path string) ([]byte, error)
}

func New(cfg config.Config, deps Deps) *Activities {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		cfg:         cfg,
		jobs:        deps.Jobs,
		files:       deps.Files,
		newPipeline: deps.NewPipeline,
		http:        client,
		logger:      logger,
		cancelPoll:  2 * time.Second,
		readFile:    readStoredFile,
	}
}
