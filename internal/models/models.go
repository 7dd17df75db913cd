package models

import (
	"fmt"
	"time"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusDone      = "done"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const (
	ModeMerged  = "merged"
	ModePerFile = "per_file"
)

// JobParams is the params_json column of a generation job.
type JobParams struct {
	NumberOfQuestions int    `json:"number_of_questions"`
	Difficulty        string `json:"difficulty"`
	Mode              string `json:"mode"`
	IncludeAnswers    *bool  `json:"include_answers,omitempty"`
}

// WithDefaults fills the values a job submitted without them runs with.
func (p JobParams) WithDefaults() JobParams {
	if p.NumberOfQuestions <= 0 {
		p.NumberOfQuestions = 20
	}
	if p.Difficulty == "" {
		p.Difficulty = "medium"
	}
	if p.Mode == "" {
		p.Mode = ModeMerged
	}
	if p.IncludeAnswers == nil {
		yes := true
		p.IncludeAnswers = &yes
	}
	return p
}

func (p JobParams) Answers() bool {
	return p.IncludeAnswers == nil || *p.IncludeAnswers
}

func (p JobParams) Validate() error {
	if p.NumberOfQuestions < 0 {
		return fmt.Errorf("number_of_questions must not be negative, got %d", p.NumberOfQuestions)
	}
	switch p.Mode {
	case "", ModeMerged, ModePerFile:
	default:
		return fmt.Errorf("mode must be %s or %s, got %q", ModeMerged, ModePerFile, p.Mode)
	}
	return nil
}

type Job struct {
	JobID        string            `json:"job_id"`
	TopicID      string            `json:"topic_id"`
	TopicTitle   string            `json:"topic_title,omitempty"`
	UserID       int64             `json:"user_id"`
	TelegramID   *int64            `json:"telegram_id,omitempty"`
	Params       JobParams         `json:"params"`
	Status       string            `json:"status"`
	Stage        string            `json:"stage,omitempty"`
	Progress     int               `json:"progress"`
	ResultPaths  map[string]string `json:"result_paths,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

type File struct {
	FileID           string `json:"file_id"`
	TopicID          string `json:"topic_id"`
	OriginalFilename string `json:"original_filename"`
	MimeType         string `json:"mime_type"`
	SizeBytes        int64  `json:"size_bytes"`
	StoragePath      string `json:"storage_path"`
	SHA256           string `json:"sha256,omitempty"`
}
