package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/appliance/fake"
)

// recordingObserver captures tracker notifications.
type recordingObserver struct {
	mu        sync.Mutex
	submitted []JobHandle
	finished  []JobOutcome
}

func (r *recordingObserver) JobSubmitted(h JobHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, h)
}

func (r *recordingObserver) JobFinished(o JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, o)
}

func (r *recordingObserver) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted), len(r.finished)
}

func queueJob(t *testing.T, s *Session, ref, target string) {
	t.Helper()
	if _, err := s.Submit(context.Background(), appliance.Result{Reference: appliance.ParseRef(target), Job: ref}); err != nil {
		t.Fatalf("Submit(%s) failed: %v", ref, err)
	}
}

func TestClassifyState(t *testing.T) {
	tests := []struct {
		state      appliance.JobState
		terminal   bool
		successful bool
	}{
		{appliance.JobRunning, false, false},
		{appliance.JobSuspended, false, false},
		{appliance.JobCompleted, true, true},
		{appliance.JobFailed, true, false},
		{appliance.JobCanceled, true, false},
	}
	for _, tt := range tests {
		got := ClassifyState(tt.state)
		if got.Terminal != tt.terminal || got.Successful != tt.successful {
			t.Errorf("ClassifyState(%s) = %+v", tt.state, got)
		}
	}
}

func TestTrackDrainsEveryHandle(t *testing.T) {
	a := fake.New()
	a.AddJob("JOB-1", "ORACLE_DB_CONTAINER-1", appliance.JobRunning, appliance.JobCompleted)
	a.AddJob("JOB-2", "ORACLE_DB_CONTAINER-2", appliance.JobFailed)
	a.AddJob("JOB-3", "ASE_DB_CONTAINER-3", appliance.JobRunning, appliance.JobSuspended, appliance.JobRunning, appliance.JobCanceled)
	obs := &recordingObserver{}
	s := NewSession(testRecord(t, "eng1", false), a, fastTracker(obs))

	queueJob(t, s, "JOB-1", "ORACLE_DB_CONTAINER-1")
	queueJob(t, s, "JOB-2", "ORACLE_DB_CONTAINER-2")
	queueJob(t, s, "JOB-3", "ASE_DB_CONTAINER-3")

	outcomes, err := s.tracker.Track(context.Background(), s)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if s.Jobs().Len() != 0 {
		t.Fatalf("job set not empty after Track: %d", s.Jobs().Len())
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}

	states := map[string]appliance.JobState{}
	for _, o := range outcomes {
		states[o.Handle.Reference] = o.State
	}
	if states["JOB-1"] != appliance.JobCompleted || states["JOB-2"] != appliance.JobFailed || states["JOB-3"] != appliance.JobCanceled {
		t.Errorf("unexpected terminal states %v", states)
	}
	if n := len(a.CallsTo("job", appliance.KindJob)); n != 2+1+4 {
		t.Errorf("job polls = %d, want 7", n)
	}

	submitted, finished := obs.counts()
	if submitted != 3 || finished != 3 {
		t.Errorf("observer saw %d submissions and %d completions", submitted, finished)
	}
}

func TestDrainJobsReportsFailures(t *testing.T) {
	a := fake.New()
	a.AddJob("JOB-1", "ORACLE_DB_CONTAINER-1", appliance.JobCompleted)
	a.AddJob("JOB-2", "ORACLE_DB_CONTAINER-2", appliance.JobFailed)
	s := NewSession(testRecord(t, "eng1", false), a, fastTracker())

	queueJob(t, s, "JOB-1", "ORACLE_DB_CONTAINER-1")
	queueJob(t, s, "JOB-2", "ORACLE_DB_CONTAINER-2")

	err := s.DrainJobs(context.Background())
	if !IsJob(err) {
		t.Fatalf("expected job error, got %v", err)
	}
	if len(s.Outcomes()) != 2 {
		t.Errorf("outcomes = %d, want 2", len(s.Outcomes()))
	}
}

func TestTrackDropsHandleAfterRepeatedPollErrors(t *testing.T) {
	a := fake.New()
	a.AddJob("JOB-1", "ORACLE_DB_CONTAINER-1", appliance.JobRunning)
	a.FailOn(appliance.KindJob, "get", &appliance.HTTPError{Method: "GET", URL: "fake://job", StatusCode: 502})
	s := NewSession(testRecord(t, "eng1", false), a, NewTracker(TrackerConfig{PollInterval: -1, MaxPollErrors: 3}))

	queueJob(t, s, "JOB-1", "ORACLE_DB_CONTAINER-1")
	outcomes, err := s.tracker.Track(context.Background(), s)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if len(outcomes) != 1 || KindOf(outcomes[0].Err) != KindNetwork {
		t.Fatalf("expected one network failure, got %+v", outcomes)
	}
	if n := len(a.CallsTo("job", appliance.KindJob)); n != 3 {
		t.Errorf("job polls = %d, want 3", n)
	}
	if s.Jobs().Len() != 0 {
		t.Error("job set not empty")
	}
}

func TestTrackInterruptCutsSleepShort(t *testing.T) {
	a := fake.New()
	a.AddJob("JOB-1", "ORACLE_DB_CONTAINER-1", appliance.JobRunning)
	s := NewSession(testRecord(t, "eng1", false), a, NewTracker(TrackerConfig{PollInterval: time.Hour}))
	queueJob(t, s, "JOB-1", "ORACLE_DB_CONTAINER-1")

	ctx, cancel := context.WithCancel(context.Background())
	a.OnJobPoll = func(ref string, polls int) {
		cancel()
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.tracker.Track(ctx, s)
		done <- err
	}()

	select {
	case err := <-done:
		if !IsInterrupted(err) {
			t.Errorf("expected interrupted error, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("interrupted error does not wrap context.Canceled: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Track did not return after cancellation")
	}
	if s.Jobs().Len() != 0 {
		t.Error("abandoned handles left in the job set")
	}
}

func TestWaitForReturnsTerminalState(t *testing.T) {
	a := fake.New()
	a.AddJob("JOB-9", "APPDATA_CONTAINER-1", appliance.JobRunning, appliance.JobCompleted)
	s := NewSession(testRecord(t, "eng1", false), a, fastTracker())

	h := &JobHandle{Reference: "JOB-9", TargetRef: appliance.ParseRef("APPDATA_CONTAINER-1"), Engine: "eng1", SubmittedAt: time.Now()}
	state, err := s.tracker.WaitFor(context.Background(), s, h)
	if err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if state != appliance.JobCompleted {
		t.Errorf("state = %s, want COMPLETED", state)
	}
}
