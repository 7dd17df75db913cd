package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"qaforge/internal/util"
)

// ExportQuestionsActivity writes the final deck as a JSON list. The file
// appears atomically, so readers never see a partial deck.
func (a *Activities) ExportQuestionsActivity(ctx context.Context, in ExportQuestionsInput) (ExportQuestionsOutput, error) {
	_ = ctx
	dir := util.SafeJoin(a.cfg.DataOutRoot, in.TopicID)
	path := filepath.Join(dir, fmt.Sprintf("questions_%s.json", filepath.Base(in.JobID)))
	if err := util.WriteJSONAtomic(path, in.Questions); err != nil {
		return ExportQuestionsOutput{}, err
	}
	return ExportQuestionsOutput{Path: path}, nil
}

// NotifyWebhookActivity tells the configured webhook that a job finished.
// Without a configured URL it does nothing.
func (a *Activities) NotifyWebhookActivity(ctx context.Context, in WebhookInput) error {
	if a.cfg.JobWebhookURL == "" {
		return nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.JobWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	a.logger.Info("job webhook delivered", zap.String("job_id", in.JobID))
	return nil
}
