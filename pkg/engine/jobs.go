package engine

import (
	"sync"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// JobHandle tracks one appliance job started on a session. Handles are
// created by Session.Submit and mutated only by the Tracker.
type JobHandle struct {
	// Reference is the appliance job reference, e.g. JOB-123.
	Reference string `json:"reference"`

	// TargetRef is the object the job acts on.
	TargetRef appliance.ObjectRef `json:"target_ref"`

	// Engine is the hostname of the owning engine.
	Engine string `json:"engine"`

	// SubmittedAt is when the producing call returned, or when a foreign
	// job was first seen.
	SubmittedAt time.Time `json:"submitted_at"`

	// Foreign marks a job this run did not start. It can be waited on but
	// is kept out of the session outcomes and the observers.
	Foreign bool `json:"foreign,omitempty"`

	// LastState is the most recently polled state.
	LastState appliance.JobState `json:"last_state,omitempty"`

	pollErrors int
}

// JobOutcome is the terminal record of a handle.
type JobOutcome struct {
	Handle   JobHandle          `json:"handle"`
	State    appliance.JobState `json:"state"`
	Err      error              `json:"-"`
	Duration time.Duration      `json:"duration"`
}

// Successful reports whether the job completed.
func (o JobOutcome) Successful() bool {
	return o.Err == nil && o.State.IsSuccessful()
}

// JobObserver is notified when jobs are submitted and when they finish.
// Observers are called from engine task goroutines and must be safe for
// concurrent use.
type JobObserver interface {
	JobSubmitted(h JobHandle)
	JobFinished(o JobOutcome)
}

// JobMetrics returns an observer that counts jobs in m.
func JobMetrics(m *telemetry.Metrics) JobObserver {
	return jobMetrics{m: m}
}

type jobMetrics struct {
	m *telemetry.Metrics
}

func (j jobMetrics) JobSubmitted(h JobHandle) {
	j.m.RecordJobSubmitted(h.Engine)
}

func (j jobMetrics) JobFinished(o JobOutcome) {
	j.m.RecordJobFinished(o.Handle.Engine, stateOrUnknown(o.State), o.Duration)
}

// JobSet is the ordered set of outstanding handles of a session.
type JobSet struct {
	mu      sync.Mutex
	handles []*JobHandle
}

// Add appends h to the set.
func (js *JobSet) Add(h *JobHandle) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.handles = append(js.handles, h)
}

// Remove drops the handle with the given reference.
func (js *JobSet) Remove(ref string) bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	for i, h := range js.handles {
		if h.Reference == ref {
			js.handles = append(js.handles[:i], js.handles[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of outstanding handles.
func (js *JobSet) Len() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return len(js.handles)
}

// Handles returns the outstanding handles in submission order.
func (js *JobSet) Handles() []*JobHandle {
	js.mu.Lock()
	defer js.mu.Unlock()
	out := make([]*JobHandle, len(js.handles))
	copy(out, js.handles)
	return out
}
