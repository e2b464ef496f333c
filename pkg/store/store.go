// Package store persists the history of pipeline runs so that operators can
// review what was launched for each subject and whether it finished.
package store

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID          string                 `json:"id"`
	Tool        string                 `json:"tool"`
	ToolVersion string                 `json:"tool_version,omitempty"`
	SubjectID   string                 `json:"subject_id,omitempty"`
	FSDir       string                 `json:"fsdir,omitempty"`
	OutDir      string                 `json:"outdir,omitempty"`
	Status      string                 `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Store records and retrieves pipeline runs.
type Store interface {
	CreateRun(run *Run) error
	GetRun(id string) (*Run, error)
	GetAllRuns() []*Run
	GetSubjectRuns(subjectID string) []*Run
	CompleteRun(id string, status string, errorMsg string) error
	CountByStatus() map[string]int
	Close() error
}

// Ensure both implementations satisfy the interface.
var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
