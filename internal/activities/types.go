package activities

import (
	"qaforge/internal/models"
	"qaforge/internal/qa"
)

type JobRef struct {
	JobID string `json:"job_id"`
}

type LoadJobOutput struct {
	Job   models.Job    `json:"job"`
	Files []models.File `json:"files"`
}

type UpdateJobInput struct {
	JobID    string `json:"job_id"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

type FailJobInput struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type CompleteJobInput struct {
	JobID       string            `json:"job_id"`
	ResultPaths map[string]string `json:"result_paths"`
}

type CheckCancelledOutput struct {
	Cancelled bool `json:"cancelled"`
}

type ExtractFilesInput struct {
	Files []models.File `json:"files"`
}

// FilePayload is the extracted text of one stored file. FileID is the
// stored file's id when there is one.
type FilePayload struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name"`
	Text     string `json:"text"`
}

type ExtractFilesOutput struct {
	Payloads []FilePayload `json:"payloads"`
}

type ChunkFilesInput struct {
	TopicID  string        `json:"topic_id"`
	Payloads []FilePayload `json:"payloads"`
}

type ChunkFilesOutput struct {
	Files []qa.FileInput `json:"files"`
}

type GenerateQuestionsInput struct {
	JobID      string         `json:"job_id"`
	Files      []qa.FileInput `json:"files"`
	Total      int            `json:"total"`
	Difficulty string         `json:"difficulty"`
	Mode       string         `json:"mode"`
}

type GenerateQuestionsOutput struct {
	Questions []qa.Question `json:"questions"`
	LLMCalls  int           `json:"llm_calls"`
	Cancelled bool          `json:"cancelled"`
}

type FinalizeQuestionsInput struct {
	Questions      []qa.Question `json:"questions"`
	Total          int           `json:"total"`
	IncludeAnswers bool          `json:"include_answers"`
}

type FinalizeQuestionsOutput struct {
	Questions []qa.Question `json:"questions"`
}

type ExportQuestionsInput struct {
	JobID     string        `json:"job_id"`
	TopicID   string        `json:"topic_id"`
	Questions []qa.Question `json:"questions"`
}

type ExportQuestionsOutput struct {
	Path string `json:"path"`
}

// WebhookInput is posted as-is to the completion webhook.
type WebhookInput struct {
	JobID      string `json:"job_id"`
	TopicID    string `json:"topic_id"`
	UserID     int64  `json:"user_id"`
	TelegramID *int64 `json:"telegram_id"`
}
