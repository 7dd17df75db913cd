package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qaforge/internal/llm"
	"qaforge/internal/providers"
)

type recordingInserter struct {
	rows []LLMCallRecord
	err  error
}

func (r *recordingInserter) Insert(_ context.Context, rec LLMCallRecord) error {
	r.rows = append(r.rows, rec)
	return r.err
}

func TestAuditObserverRecordsOutcome(t *testing.T) {
	ins := &recordingInserter{}
	obs := &AuditObserver{repo: ins, jobID: "job-1", logger: zap.NewNop()}

	obs.ObserveCall(context.Background(), llm.CallRecord{
		Operation: providers.OpPlanTopics,
		Provider:  providers.ProviderInfo{Name: "gemini", Model: "gemini-2.5-flash-lite"},
		Attempt:   1,
		Latency:   1500 * time.Millisecond,
	})
	obs.ObserveCall(context.Background(), llm.CallRecord{
		Operation: providers.OpGenerateQuestions,
		Attempt:   2,
		Err:       errors.New("429 too many requests"),
	})

	require.Len(t, ins.rows, 2)
	require.Equal(t, "ok", ins.rows[0].Status)
	require.Equal(t, "gemini", ins.rows[0].ProviderName)
	require.Equal(t, "job-1", ins.rows[0].JobID)
	_, err := uuid.Parse(ins.rows[0].CallID)
	require.NoError(t, err)

	require.Equal(t, "error", ins.rows[1].Status)
	require.Equal(t, string(providers.ErrorRate), ins.rows[1].ErrorType)
	require.Equal(t, "unknown", ins.rows[1].ProviderName)
	require.NotEqual(t, ins.rows[0].CallID, ins.rows[1].CallID)
}

func TestAuditObserverSwallowsInsertErrors(t *testing.T) {
	ins := &recordingInserter{err: errors.New("db down")}
	obs := &AuditObserver{repo: ins, logger: zap.NewNop()}
	require.NotPanics(t, func() {
		obs.ObserveCall(context.Background(), llm.CallRecord{Operation: "x"})
	})
	require.Len(t, ins.rows, 1)
}
