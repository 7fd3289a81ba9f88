package appliance

import (
	"encoding/json"
	"fmt"
)

// JobState is the lifecycle state the appliance reports for a job.
type JobState string

const (
	// JobRunning indicates the job is still executing.
	JobRunning JobState = "RUNNING"

	// JobSuspended indicates the job was paused on the appliance.
	JobSuspended JobState = "SUSPENDED"

	// JobCompleted indicates the job finished successfully.
	JobCompleted JobState = "COMPLETED"

	// JobCanceled indicates the job was canceled.
	JobCanceled JobState = "CANCELED"

	// JobFailed indicates the job failed.
	JobFailed JobState = "FAILED"
)

// IsTerminal returns true if no further transitions are possible.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobCanceled || s == JobFailed
}

// IsSuccessful returns true only for a completed job.
func (s JobState) IsSuccessful() bool {
	return s == JobCompleted
}

// Validate checks if the job state is one the appliance can report.
func (s JobState) Validate() error {
	switch s {
	case JobRunning, JobSuspended, JobCompleted, JobCanceled, JobFailed:
		return nil
	default:
		return fmt.Errorf("invalid job state: %q", string(s))
	}
}

// UnmarshalJSON rejects states outside the known set.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := JobState(str)
	if err := state.Validate(); err != nil {
		return err
	}
	*s = state
	return nil
}

// Job is the appliance view of an asynchronous job.
type Job struct {
	Reference       string     `json:"reference"`
	Type            string     `json:"type,omitempty"`
	ActionType      string     `json:"actionType,omitempty"`
	Title           string     `json:"title,omitempty"`
	Target          string     `json:"target,omitempty"`
	TargetName      string     `json:"targetName,omitempty"`
	JobState        JobState   `json:"jobState"`
	PercentComplete float64    `json:"percentComplete,omitempty"`
	StartTime       string     `json:"startTime,omitempty"`
	UpdateTime      string     `json:"updateTime,omitempty"`
	Events          []JobEvent `json:"events,omitempty"`
}

// JobEvent is one progress or error entry recorded against a job.
type JobEvent struct {
	Timestamp      string `json:"timestamp,omitempty"`
	EventType      string `json:"eventType,omitempty"`
	MessageCode    string `json:"messageCode,omitempty"`
	MessageDetails string `json:"messageDetails,omitempty"`
}

// LastError returns the details of the last ERROR event, if any.
func (j *Job) LastError() string {
	for i := len(j.Events) - 1; i >= 0; i-- {
		if j.Events[i].EventType == "ERROR" {
			return j.Events[i].MessageDetails
		}
	}
	return ""
}
