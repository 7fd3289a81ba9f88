package stores

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func createRun(t *testing.T, store *SQLiteStore, id string, started time.Time) *Run {
	t.Helper()

	run := &Run{
		ID:        id,
		Command:   "vdb refresh",
		Selector:  "all engines",
		StartedAt: started,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests that migrations apply to a file database and
// can be re-run.
func TestStoreMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStore(Config{Path: path})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if err := store.Init(ctx); err != nil {
			t.Fatalf("failed to initialize store: %v", err)
		}
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migration %d failed: %v", i+1, err)
		}
		if i == 0 {
			createRun(t, store, "run-file", time.Now())
		}
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	createRun(t, store, "run-001", started)

	run, err := store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected status %s, got %s", RunStatusRunning, run.Status)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, run.StartedAt)
	}
	if run.ExitCode != nil || run.CompletedAt != nil {
		t.Error("expected no exit code or completion time for a running run")
	}

	msg := "engine dlpx01: refresh of 12cvdb failed"
	if err := store.FinishRun(ctx, "run-001", RunStatusFailed, 3, &msg); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err = store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("expected status %s, got %s", RunStatusFailed, run.Status)
	}
	if run.ExitCode == nil || *run.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", run.ExitCode)
	}
	if run.Error == nil || *run.Error != msg {
		t.Errorf("expected error %q, got %v", msg, run.Error)
	}
	if run.CompletedAt == nil {
		t.Error("expected completion time")
	}

	if err := store.FinishRun(ctx, "run-missing", RunStatusSucceeded, 0, nil); err == nil {
		t.Error("expected error finishing a missing run")
	}
	if _, err := store.GetRun(ctx, "run-missing"); !errors.Is(err, ErrRunNotFound) {
		t.Error("expected error getting a missing run")
	}
}

func TestListAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		createRun(t, store, id, base.Add(time.Duration(i)*time.Hour))
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("expected newest runs first, got %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Fatalf("expected run-a on the second page, got %v", runIDs(runs))
	}

	if err := store.RecordEngineResult(ctx, &EngineResult{RunID: "run-a", Hostname: "dlpx01", Status: "succeeded", FinishedAt: base}); err != nil {
		t.Fatalf("failed to record engine result: %v", err)
	}

	n, err := store.PruneRuns(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned runs, got %d", n)
	}

	results, err := store.ListEngineResults(ctx, "run-a")
	if err != nil {
		t.Fatalf("failed to list engine results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected engine results to be deleted with their run, got %d", len(results))
	}
}

func TestEngineResultsReplaceByHostname(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	createRun(t, store, "run-001", time.Now())

	first := &EngineResult{RunID: "run-001", Hostname: "dlpx02", Status: "failed", Kind: "network", FinishedAt: time.Now()}
	second := &EngineResult{RunID: "run-001", Hostname: "dlpx02", Status: "succeeded", Jobs: 2, Duration: 90 * time.Second, FinishedAt: time.Now()}
	other := &EngineResult{RunID: "run-001", Hostname: "dlpx01", Status: "succeeded", FinishedAt: time.Now()}
	for _, r := range []*EngineResult{first, second, other} {
		if err := store.RecordEngineResult(ctx, r); err != nil {
			t.Fatalf("failed to record engine result: %v", err)
		}
	}

	results, err := store.ListEngineResults(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to list engine results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 engine results, got %d", len(results))
	}
	if results[0].Hostname != "dlpx01" || results[1].Hostname != "dlpx02" {
		t.Errorf("expected hostname order, got %s, %s", results[0].Hostname, results[1].Hostname)
	}
	if results[1].Status != "succeeded" || results[1].Jobs != 2 || results[1].Duration != 90*time.Second {
		t.Errorf("expected the second dlpx02 result to win, got %+v", results[1])
	}
}

func TestEngineResultRequiresRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	err := store.RecordEngineResult(context.Background(), &EngineResult{RunID: "nope", Hostname: "dlpx01", Status: "failed", FinishedAt: time.Now()})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestJobRecords(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	createRun(t, store, "run-001", time.Now())
	submitted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	job := &JobRecord{RunID: "run-001", Hostname: "dlpx01", JobRef: "JOB-7", TargetRef: "ORACLE_DB_CONTAINER-2", State: "RUNNING", SubmittedAt: submitted}
	if err := store.RecordJobSubmitted(ctx, job); err != nil {
		t.Fatalf("failed to record job: %v", err)
	}
	// A duplicate submission is ignored.
	if err := store.RecordJobSubmitted(ctx, job); err != nil {
		t.Fatalf("failed to record duplicate job: %v", err)
	}

	d := 42 * time.Second
	msg := "job JOB-7 failed"
	done := &JobRecord{RunID: "run-001", Hostname: "dlpx01", JobRef: "JOB-7", State: "FAILED", Error: &msg, SubmittedAt: submitted, Duration: &d}
	if err := store.RecordJobFinished(ctx, done); err != nil {
		t.Fatalf("failed to record job outcome: %v", err)
	}

	// A job whose submission was never seen is inserted on completion.
	orphan := &JobRecord{RunID: "run-001", Hostname: "dlpx02", JobRef: "JOB-9", State: "COMPLETED", SubmittedAt: submitted.Add(time.Minute)}
	if err := store.RecordJobFinished(ctx, orphan); err != nil {
		t.Fatalf("failed to record orphan job: %v", err)
	}

	jobs, err := store.ListJobs(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	got := jobs[0]
	if got.JobRef != "JOB-7" || got.State != "FAILED" {
		t.Errorf("expected JOB-7 FAILED, got %s %s", got.JobRef, got.State)
	}
	if got.TargetRef != "ORACLE_DB_CONTAINER-2" {
		t.Errorf("expected target ref to survive completion, got %q", got.TargetRef)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("expected error %q, got %v", msg, got.Error)
	}
	if got.Duration == nil || *got.Duration != d {
		t.Errorf("expected duration %s, got %v", d, got.Duration)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at")
	}
	if jobs[1].JobRef != "JOB-9" || jobs[1].Duration != nil {
		t.Errorf("expected JOB-9 without duration, got %+v", jobs[1])
	}
}

func TestRecorderObservesEngineEvents(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	createRun(t, store, "run-rec", time.Now())
	rec := NewRecorder(store, "run-rec", nil)

	var (
		_ engine.JobObserver     = rec
		_ engine.OutcomeObserver = rec
	)

	h := engine.JobHandle{
		Reference:   "JOB-11",
		TargetRef:   appliance.ParseRef("ORACLE_DB_CONTAINER-2"),
		Engine:      "dlpx01",
		SubmittedAt: time.Now(),
	}
	rec.JobSubmitted(h)
	rec.JobFinished(engine.JobOutcome{
		Handle:   h,
		State:    appliance.JobFailed,
		Err:      errors.New("ORA-01031 insufficient privileges"),
		Duration: 3 * time.Second,
	})
	rec.EngineFinished(engine.Outcome{
		Hostname: "dlpx01",
		Status:   engine.OutcomeFailed,
		Kind:     engine.KindJob,
		Err:      errors.New("refresh of 12cvdb failed"),
		Duration: 5 * time.Second,
	})

	jobs, err := store.ListJobs(ctx, "run-rec")
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].State != string(appliance.JobFailed) {
		t.Fatalf("expected one failed job, got %+v", jobs)
	}
	if jobs[0].Error == nil || *jobs[0].Error != "ORA-01031 insufficient privileges" {
		t.Errorf("unexpected job error %v", jobs[0].Error)
	}

	results, err := store.ListEngineResults(ctx, "run-rec")
	if err != nil {
		t.Fatalf("failed to list engine results: %v", err)
	}
	if len(results) != 1 || results[0].Kind != string(engine.KindJob) {
		t.Fatalf("expected one job-kind engine result, got %+v", results)
	}
}

func TestRecorderSwallowsWriteErrors(t *testing.T) {
	store := setupTestStore(t)
	rec := NewRecorder(store, "run-closed", nil)
	store.Close()

	// Must not panic when the store is gone.
	rec.EngineFinished(engine.Outcome{Hostname: "dlpx01", Status: engine.OutcomeSucceeded})
	rec.JobSubmitted(engine.JobHandle{Reference: "JOB-1", Engine: "dlpx01"})
}

func runIDs(runs []*Run) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
