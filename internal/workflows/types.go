package workflows

const QueryGetProgress = "GetProgress"

// Stage names recorded on the job, with the progress each one reports.
const (
	StageExtracting = "extracting"
	StageChunking   = "chunking"
	StageGenerating = "generating"
	StageDeduping   = "deduping"
	StageExporting  = "exporting"
	StageDone       = "done"
)

var stageProgress = map[string]int{
	StageExtracting: 15,
	StageChunking:   30,
	StageGenerating: 65,
	StageDeduping:   80,
	StageExporting:  90,
	StageDone:       100,
}

// StageProgress returns the progress percentage reported for stage.
func StageProgress(stage string) int {
	return stageProgress[stage]
}

type GenerationJobInput struct {
	JobID string `json:"job_id"`
}

type GenerationJobResult struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	ResultPath string `json:"result_path,omitempty"`
	Questions  int    `json:"questions"`
	Error      string `json:"error,omitempty"`
}

// JobProgress is what the GetProgress query returns.
type JobProgress struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	LLMCalls int    `json:"llm_calls"`
	Error    string `json:"error,omitempty"`
}

// JobWorkflowID is the workflow ID used for a generation job, so a job can
// only ever have one live run.
func JobWorkflowID(jobID string) string {
	return "qagen-job-" + jobID
}
