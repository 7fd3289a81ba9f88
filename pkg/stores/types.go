package stores

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus represents the status of a recorded command run.
type RunStatus string

const (
	// RunStatusRunning indicates the command has not finished yet, or the
	// process died before it could record the end of the run.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the command exited 0 without interruption.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the command exited non-zero.
	RunStatusFailed RunStatus = "failed"

	// RunStatusInterrupted indicates the user interrupted the command.
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is one invocation of a ddpctl command.
type Run struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`  // e.g. "vdb refresh"
	Selector    string     `json:"selector"` // e.g. "all engines"
	Status      RunStatus  `json:"status"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EngineResult is the outcome of one engine task of a run.
type EngineResult struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	Hostname   string        `json:"hostname"`
	Status     string        `json:"status"`
	Kind       string        `json:"kind,omitempty"`
	Error      *string       `json:"error,omitempty"`
	Jobs       int           `json:"jobs"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// JobRecord is one appliance job started during a run.
type JobRecord struct {
	ID          int64          `json:"id"`
	RunID       string         `json:"run_id"`
	Hostname    string         `json:"hostname"`
	JobRef      string         `json:"job_ref"`
	TargetRef   string         `json:"target_ref,omitempty"`
	State       string         `json:"state,omitempty"`
	Error       *string        `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
}

// Store defines the interface for the run-history ledger
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, exitCode int, err *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	// Engine operations
	RecordEngineResult(ctx context.Context, result *EngineResult) error
	ListEngineResults(ctx context.Context, runID string) ([]*EngineResult, error)

	// Job operations
	RecordJobSubmitted(ctx context.Context, job *JobRecord) error
	RecordJobFinished(ctx context.Context, job *JobRecord) error
	ListJobs(ctx context.Context, runID string) ([]*JobRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
