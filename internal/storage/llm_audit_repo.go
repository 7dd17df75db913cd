package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qaforge/internal/llm"
	"qaforge/internal/providers"
)

type LLMCallRecord struct {
	CallID       string
	JobID        string
	Operation    string
	ProviderName string
	Model        string
	Attempt      int
	Latency      time.Duration
	Status       string
	ErrorType    string
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, job_id, operation, provider_name, model, attempt, latency_ms, status, error_type)
VALUES ($1::uuid, NULLIF($2,'')::uuid, $3, $4, $5, $6, $7, $8, NULLIF($9,''))`,
		rec.CallID, rec.JobID, rec.Operation, rec.ProviderName, rec.Model, rec.Attempt,
		rec.Latency.Milliseconds(), rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

var _ llm.Observer = (*AuditObserver)(nil)

type auditInserter interface {
	Insert(ctx context.Context, rec LLMCallRecord) error
}

// AuditObserver writes one llm_calls row per provider attempt. Insert
// failures are logged and never fail the call being audited.
type AuditObserver struct {
	repo   auditInserter
	jobID  string
	logger *zap.Logger
}

func NewAuditObserver(repo *LLMAuditRepo, jobID string, logger *zap.Logger) *AuditObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditObserver{repo: repo, jobID: jobID, logger: logger}
}

func (o *AuditObserver) ObserveCall(ctx context.Context, rec llm.CallRecord) {
	row := LLMCallRecord{
		CallID:       uuid.NewString(),
		JobID:        o.jobID,
		Operation:    rec.Operation,
		ProviderName: rec.Provider.Name,
		Model:        rec.Provider.Model,
		Attempt:      rec.Attempt,
		Latency:      rec.Latency,
		Status:       "ok",
	}
	if row.ProviderName == "" {
		row.ProviderName = "unknown"
	}
	if rec.Err != nil {
		row.Status = "error"
		row.ErrorType = string(providers.ClassifyError(rec.Err))
	}
	if err := o.repo.Insert(ctx, row); err != nil {
		o.logger.Warn("llm audit insert failed", zap.String("operation", rec.Operation), zap.Error(err))
	}
}
