package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
)

// JobMode decides what a session does with a job returned by an operation.
type JobMode string

const (
	// JobModeSynchronous blocks each operation until its job is terminal.
	JobModeSynchronous JobMode = "synchronous"

	// JobModeCooperative records the job in the session JobSet and returns
	// immediately; the executor drains the set after the workflow.
	JobModeCooperative JobMode = "cooperative"
)

// Validate checks if the job mode is valid.
func (m JobMode) Validate() error {
	switch m {
	case JobModeSynchronous, JobModeCooperative:
		return nil
	default:
		return fmt.Errorf("invalid job mode: %s", m)
	}
}

// ModeFor returns the job mode matching the --single_thread flag.
func ModeFor(singleThread bool) JobMode {
	if singleThread {
		return JobModeSynchronous
	}
	return JobModeCooperative
}

// Classification is the tracker's view of a job state.
type Classification struct {
	Terminal   bool `json:"terminal"`
	Successful bool `json:"successful"`
}

// ClassifyState classifies an appliance job state.
func ClassifyState(state appliance.JobState) Classification {
	return Classification{
		Terminal:   state.IsTerminal(),
		Successful: state.IsSuccessful(),
	}
}

// OutcomeStatus summarises one engine task.
type OutcomeStatus string

const (
	// OutcomeSucceeded indicates the workflow and all of its jobs completed.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeFailed indicates the workflow or one of its jobs failed.
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomeInterrupted indicates the task stopped because the run was interrupted.
	OutcomeInterrupted OutcomeStatus = "interrupted"

	// OutcomeSkipped indicates the task was never dispatched.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// IsFailure returns true if the status should be reported as a failure.
func (s OutcomeStatus) IsFailure() bool {
	return s == OutcomeFailed
}

// Validate checks if the outcome status is valid.
func (s OutcomeStatus) Validate() error {
	switch s {
	case OutcomeSucceeded, OutcomeFailed, OutcomeInterrupted, OutcomeSkipped:
		return nil
	default:
		return fmt.Errorf("invalid outcome status: %s", s)
	}
}

// UnmarshalJSON rejects unknown statuses.
func (s *OutcomeStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := OutcomeStatus(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}
