package domain

import (
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageAnalyze  Stage = "ANALYZE"
	StageGenerate Stage = "GENERATE"
	StageDeploy   Stage = "DEPLOY"
	StageSync     Stage = "SYNC"
	StageDone     Stage = "DONE"
)

type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCEEDED"
	RunFailed  RunStatus = "FAILED"
)

// FailureRecord captures the first fatal stage failure of a run.
// Attaching one terminates the run.
type FailureRecord struct {
	Stage     Stage  `json:"stage"`
	Reason    string `json:"reason"`
	RawOutput string `json:"raw_output,omitempty"`
}

// PipelineRun accumulates artifacts as stages complete. Stage only
// advances forward; HTMLPath/LiveURL are set exactly when their stage
// succeeded.
type PipelineRun struct {
	ID             uuid.UUID
	ClientName     string
	ClientSlug     string
	TranscriptPath string
	DataPath       string
	HTMLPath       string
	LiveURL        string
	Stage          Stage
	Failure        *FailureRecord
	SyncOK         bool
	StartedAt      time.Time
}

// PipelineOutcome is the public result of one pipeline invocation.
type PipelineOutcome struct {
	Success     bool           `json:"success"`
	LiveURL     string         `json:"live_url,omitempty"`
	Transcript  string         `json:"transcript_path,omitempty"`
	DataPath    string         `json:"data_path,omitempty"`
	HTMLPath    string         `json:"html_path,omitempty"`
	SyncOK      bool           `json:"sync_ok"`
	FailedStage Stage          `json:"failed_stage,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Failure     *FailureRecord `json:"failure,omitempty"`
}

// RunSummary is the persisted view of a finished or in-flight run, as
// listed by the history API.
type RunSummary struct {
	ID         uuid.UUID `json:"id"`
	ClientName string    `json:"client_name"`
	ClientSlug string    `json:"client_slug"`
	Status     RunStatus `json:"status"`
	Stage      Stage     `json:"stage"`
	LiveURL    string    `json:"live_url,omitempty"`
	SyncOK     bool      `json:"sync_ok"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// StageRecord is the persisted view of one executed stage.
type StageRecord struct {
	Stage      Stage     `json:"stage"`
	Status     RunStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
