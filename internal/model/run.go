package model

import "time"

// StageRunStatus is the outcome of one scheduled stage execution.
type StageRunStatus string

const (
	StageRunning StageRunStatus = "running"
	StageSuccess StageRunStatus = "success"
	StagePartial StageRunStatus = "partial"
	StageFailed  StageRunStatus = "failed"
)

// StageResult is what a stage reports when it finishes.
type StageResult struct {
	ItemsProcessed int            `json:"items_processed"`
	NewItems       int            `json:"new_items"`
	Failures       int            `json:"failures"`
	Detail         map[string]any `json:"detail,omitempty"`
}

// Status derives success or partial from the failure count.
func (r *StageResult) Status() StageRunStatus {
	if r.Failures > 0 {
		return StagePartial
	}
	return StageSuccess
}

// StageRun is one entry in the stage run log.
type StageRun struct {
	ID          string         `json:"id"`
	Stage       string         `json:"stage"`
	Status      StageRunStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Result      *StageResult   `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}
