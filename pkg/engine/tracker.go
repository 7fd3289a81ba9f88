package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
)

// Tracker defaults.
const (
	DefaultPollInterval  = 10 * time.Second
	DefaultMaxPollErrors = 5
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// PollInterval is the pause between polling rounds. Negative disables the pause.
	PollInterval time.Duration

	// MaxPollErrors is the number of consecutive failed polls after which a
	// handle is dropped and recorded as a network failure.
	MaxPollErrors int
}

// Tracker polls appliance jobs until they reach a terminal state. A tracker
// holds no per-session state and may be shared by concurrent sessions.
type Tracker struct {
	pollInterval  time.Duration
	maxPollErrors int
	observers     []JobObserver
}

// NewTracker creates a tracker.
func NewTracker(cfg TrackerConfig, observers ...JobObserver) *Tracker {
	t := &Tracker{
		pollInterval:  cfg.PollInterval,
		maxPollErrors: cfg.MaxPollErrors,
		observers:     observers,
	}
	if t.pollInterval < 0 {
		t.pollInterval = 0
	} else if t.pollInterval == 0 {
		t.pollInterval = DefaultPollInterval
	}
	if t.maxPollErrors <= 0 {
		t.maxPollErrors = DefaultMaxPollErrors
	}
	return t
}

// PollInterval returns the pause between polling rounds.
func (t *Tracker) PollInterval() time.Duration {
	return t.pollInterval
}

// Track polls every handle in the session's job set until the set is empty.
// Failed or canceled jobs do not stop the loop; each is recorded against its
// handle and returned in the outcomes. When ctx is canceled the current
// sleep is cut short, the remaining handles are abandoned and an
// Interrupted error is returned. The job set is empty whenever Track returns.
func (t *Tracker) Track(ctx context.Context, s *Session) ([]JobOutcome, error) {
	var outcomes []JobOutcome
	for s.jobs.Len() > 0 {
		for _, h := range s.jobs.Handles() {
			outcome, done, err := t.poll(ctx, s, h)
			if err != nil {
				return append(outcomes, t.abandon(s, err)...), err
			}
			if done {
				s.jobs.Remove(h.Reference)
				outcomes = append(outcomes, outcome)
			}
		}
		if s.jobs.Len() == 0 {
			break
		}
		if err := sleep(ctx, t.pollInterval); err != nil {
			ierr := NewInterruptedError("job drain interrupted", err).WithEngine(s.Hostname())
			return append(outcomes, t.abandon(s, ierr)...), ierr
		}
	}
	return outcomes, nil
}

// WaitFor polls a single handle until it is terminal and returns its state.
// A state other than COMPLETED is returned together with a job error.
func (t *Tracker) WaitFor(ctx context.Context, s *Session, h *JobHandle) (appliance.JobState, error) {
	for {
		outcome, done, err := t.poll(ctx, s, h)
		if err != nil {
			t.finish(s, h, h.LastState, err)
			return h.LastState, err
		}
		if done {
			return outcome.State, outcome.Err
		}
		if err := sleep(ctx, t.pollInterval); err != nil {
			ierr := NewInterruptedError(fmt.Sprintf("wait for job %s interrupted", h.Reference), err).WithEngine(s.Hostname())
			t.finish(s, h, h.LastState, ierr)
			return h.LastState, ierr
		}
	}
}

// poll queries h once. done is true when h reached a terminal state or was
// given up on; err is only returned for interruption.
func (t *Tracker) poll(ctx context.Context, s *Session, h *JobHandle) (JobOutcome, bool, error) {
	if err := ctx.Err(); err != nil {
		return JobOutcome{}, false, NewInterruptedError("job polling interrupted", err).WithEngine(s.Hostname())
	}

	job, err := s.client.Job(ctx, h.Reference)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return JobOutcome{}, false, NewInterruptedError("job polling interrupted", err).WithEngine(s.Hostname())
		}
		h.pollErrors++
		s.logger.WithJob(h.Reference).Warnf("polling job %s failed (%d/%d): %v", h.Reference, h.pollErrors, t.maxPollErrors, err)
		if h.pollErrors < t.maxPollErrors {
			return JobOutcome{}, false, nil
		}
		lost := NewNetworkError(fmt.Sprintf("lost track of job %s after %d failed polls", h.Reference, h.pollErrors), err).
			WithEngine(s.Hostname()).
			WithResource(h.TargetRef.ID)
		return t.finish(s, h, h.LastState, lost), true, nil
	}

	h.pollErrors = 0
	if job.JobState != h.LastState {
		s.logger.WithJob(h.Reference).Debugf("job %s is %s (%d%%)", h.Reference, job.JobState, int(job.PercentComplete))
	}
	h.LastState = job.JobState
	if !ClassifyState(job.JobState).Terminal {
		return JobOutcome{}, false, nil
	}

	var jobErr error
	if !job.JobState.IsSuccessful() {
		code := ErrCodeJobFailed
		if job.JobState == appliance.JobCanceled {
			code = ErrCodeCanceled
		}
		var cause error
		if detail := job.LastError(); detail != "" {
			cause = errors.New(detail)
		}
		jobErr = NewJobError(fmt.Sprintf("job %s ended %s", h.Reference, job.JobState), cause).
			WithEngine(s.Hostname()).
			WithResource(h.TargetRef.ID).
			WithOperation(job.ActionType).
			WithCode(code)
	}
	return t.finish(s, h, job.JobState, jobErr), true, nil
}

// finish records the terminal outcome of h and notifies observers. Foreign
// handles are logged only.
func (t *Tracker) finish(s *Session, h *JobHandle, state appliance.JobState, err error) JobOutcome {
	outcome := JobOutcome{
		Handle:   *h,
		State:    state,
		Err:      err,
		Duration: time.Since(h.SubmittedAt),
	}
	logger := s.logger.WithJob(h.Reference)
	switch {
	case err == nil:
		logger.Infof("job %s %s", h.Reference, state)
	case IsInterrupted(err):
		logger.Warnf("stopped waiting for job %s (last state %s)", h.Reference, state)
	default:
		logger.WithError(err).Errorf("job %s %s", h.Reference, stateOrUnknown(state))
	}
	if h.Foreign {
		return outcome
	}
	s.recordOutcome(outcome)
	for _, o := range t.observers {
		o.JobFinished(outcome)
	}
	return outcome
}

// abandon drops every remaining handle of s after an interruption.
func (t *Tracker) abandon(s *Session, err error) []JobOutcome {
	var outcomes []JobOutcome
	for _, h := range s.jobs.Handles() {
		s.jobs.Remove(h.Reference)
		outcomes = append(outcomes, t.finish(s, h, h.LastState, err))
	}
	return outcomes
}

func (t *Tracker) submitted(h JobHandle) {
	for _, o := range t.observers {
		o.JobSubmitted(h)
	}
}

func stateOrUnknown(state appliance.JobState) string {
	if state == "" {
		return "UNKNOWN"
	}
	return string(state)
}
