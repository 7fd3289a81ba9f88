package stores

import (
	"context"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// recordTimeout bounds each ledger write; history must never stall a run.
const recordTimeout = 5 * time.Second

// Recorder writes the engine and job events of one run to a Store. It
// implements engine.JobObserver and engine.OutcomeObserver. Write failures
// are logged and otherwise ignored.
type Recorder struct {
	store  Store
	runID  string
	logger *telemetry.Logger
}

// NewRecorder returns a recorder for the run with the given ID.
func NewRecorder(store Store, runID string, logger *telemetry.Logger) *Recorder {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Recorder{
		store:  store,
		runID:  runID,
		logger: logger.NewComponentLogger("history").WithRunID(runID),
	}
}

// RunID returns the ID of the recorded run.
func (r *Recorder) RunID() string {
	return r.runID
}

// JobSubmitted implements engine.JobObserver.
func (r *Recorder) JobSubmitted(h engine.JobHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.store.RecordJobSubmitted(ctx, &JobRecord{
		RunID:       r.runID,
		Hostname:    h.Engine,
		JobRef:      h.Reference,
		TargetRef:   h.TargetRef.ID,
		State:       string(h.LastState),
		SubmittedAt: h.SubmittedAt,
	})
	if err != nil {
		r.logger.WithJob(h.Reference).Warnf("recording job failed: %v", err)
	}
}

// JobFinished implements engine.JobObserver.
func (r *Recorder) JobFinished(o engine.JobOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	finished := time.Now()
	duration := o.Duration
	job := &JobRecord{
		RunID:       r.runID,
		Hostname:    o.Handle.Engine,
		JobRef:      o.Handle.Reference,
		TargetRef:   o.Handle.TargetRef.ID,
		State:       string(o.State),
		SubmittedAt: o.Handle.SubmittedAt,
		FinishedAt:  &finished,
		Duration:    &duration,
	}
	if o.Err != nil {
		msg := o.Err.Error()
		job.Error = &msg
	}
	if err := r.store.RecordJobFinished(ctx, job); err != nil {
		r.logger.WithJob(o.Handle.Reference).Warnf("recording job outcome failed: %v", err)
	}
}

// EngineFinished implements engine.OutcomeObserver.
func (r *Recorder) EngineFinished(o engine.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	result := &EngineResult{
		RunID:      r.runID,
		Hostname:   o.Hostname,
		Status:     string(o.Status),
		Kind:       string(o.Kind),
		Jobs:       len(o.Jobs),
		Duration:   o.Duration,
		FinishedAt: time.Now(),
	}
	if o.Err != nil {
		msg := o.Err.Error()
		result.Error = &msg
	}
	if err := r.store.RecordEngineResult(ctx, result); err != nil {
		r.logger.WithEngine(o.Hostname).Warnf("recording engine result failed: %v", err)
	}
}
