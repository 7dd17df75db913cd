// Package bootstrap assembles the question pipeline from configuration for
// the worker and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qaforge/internal/config"
	"qaforge/internal/filter"
	"qaforge/internal/providers"
	"qaforge/internal/qa"
	"qaforge/internal/storage"
	"qaforge/internal/vector"
)

// PipelineFactory builds one qa.Pipeline per job so each run carries its own
// LLM call audit. Providers and the embeddings cache are shared.
type PipelineFactory struct {
	settings qa.Settings
	manager  *providers.Manager
	redactor *filter.Redactor
	generic  *filter.GenericAnswers
	metrics  *qa.Collector
	db       *storage.DB
	audit    *storage.LLMAuditRepo
	chunks   *storage.ChunkRepo
	backend  string
	dim      int
	logger   *zap.Logger
}

// NewPipelineFactory validates the content filters and builds the provider
// manager. db may be nil, which disables auditing and the pgvector backend.
func NewPipelineFactory(ctx context.Context, cfg config.Config, db *storage.DB, metrics *qa.Collector, logger *zap.Logger) (*PipelineFactory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	redactor, err := filter.NewRedactor(cfg.FilterUnrelatedContent, cfg.UnrelatedContentPatterns)
	if err != nil {
		return nil, fmt.Errorf("build redactor: %w", err)
	}
	generic, err := filter.NewGenericAnswers(cfg.FilterGenericAnswers, cfg.GenericAnswerPatterns)
	if err != nil {
		return nil, fmt.Errorf("build generic answer filter: %w", err)
	}
	manager, err := providers.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	f := &PipelineFactory{
		settings: qa.SettingsFromConfig(cfg),
		manager:  manager,
		redactor: redactor,
		generic:  generic,
		metrics:  metrics,
		db:       db,
		backend:  cfg.VectorBackend,
		dim:      cfg.EmbedDim,
		logger:   logger,
	}
	if db != nil {
		f.audit = storage.NewLLMAuditRepo(db)
		f.chunks = storage.NewChunkRepo(db)
	}
	if f.backend == "pgvector" && db == nil {
		logger.Warn("pgvector backend needs a database, using in-memory vectors")
		f.backend = "memory"
	}
	return f, nil
}

// New returns a pipeline whose provider calls are audited against jobID.
// An empty jobID skips auditing.
func (f *PipelineFactory) New(jobID string) (*qa.Pipeline, error) {
	deps := qa.Deps{
		LLM:        f.manager.LLM(),
		Embeddings: f.manager.Embeddings,
		Redactor:   f.redactor,
		Generic:    f.generic,
		Logger:     f.logger.With(zap.String("job_id", jobID)),
		Metrics:    f.metrics,
	}
	if f.audit != nil && jobID != "" {
		deps.Observer = storage.NewAuditObserver(f.audit, jobID, f.logger)
	}
	if f.backend == "pgvector" {
		deps.NewIndex = func(emb providers.EmbeddingProvider) vector.Index {
			return vector.NewPGIndex(f.db.Pool, f.chunks, emb, f.dim)
		}
	}
	return qa.New(f.settings, deps)
}
