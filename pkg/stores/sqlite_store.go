package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// SQLite has a single writer; engine tasks record concurrently.
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 1
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a new database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.ConnMaxLifetime = -1
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
		if !isMemory(s.cfg.Path) {
			dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	query := `
		INSERT INTO runs (id, command, selector, status, exit_code, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Command,
		run.Selector,
		run.Status,
		run.ExitCode,
		run.Error,
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun records the end of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, exitCode int, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, exit_code = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, exitCode, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, command, selector, status, exit_code, error, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs newest first with pagination
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, command, selector, status, exit_code, error, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// PruneRuns deletes runs started before the cutoff together with their
// engine and job rows.
func (s *SQLiteStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// RecordEngineResult stores the outcome of one engine task. A second
// result for the same engine replaces the first.
func (s *SQLiteStore) RecordEngineResult(ctx context.Context, r *EngineResult) error {
	query := `
		INSERT INTO engine_results (run_id, hostname, status, kind, error, jobs, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, hostname) DO UPDATE SET
			status = excluded.status,
			kind = excluded.kind,
			error = excluded.error,
			jobs = excluded.jobs,
			duration_ms = excluded.duration_ms,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.RunID,
		r.Hostname,
		r.Status,
		r.Kind,
		r.Error,
		r.Jobs,
		r.Duration.Milliseconds(),
		r.FinishedAt.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to record engine result: %w", err)
	}

	return nil
}

// ListEngineResults lists the engine results of a run in hostname order.
func (s *SQLiteStore) ListEngineResults(ctx context.Context, runID string) ([]*EngineResult, error) {
	query := `
		SELECT id, run_id, hostname, status, kind, error, jobs, duration_ms, finished_at
		FROM engine_results
		WHERE run_id = ?
		ORDER BY hostname
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list engine results: %w", err)
	}
	defer rows.Close()

	var results []*EngineResult
	for rows.Next() {
		r := &EngineResult{}
		var durationMS int64
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Hostname,
			&r.Status,
			&r.Kind,
			&r.Error,
			&r.Jobs,
			&durationMS,
			&r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engine result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engine results: %w", err)
	}

	return results, nil
}

// RecordJobSubmitted stores a newly submitted job.
func (s *SQLiteStore) RecordJobSubmitted(ctx context.Context, job *JobRecord) error {
	query := `
		INSERT INTO jobs (run_id, hostname, job_ref, target_ref, state, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, hostname, job_ref) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		job.RunID,
		job.Hostname,
		job.JobRef,
		job.TargetRef,
		job.State,
		job.SubmittedAt.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}

	return nil
}

// RecordJobFinished stores the terminal state of a job, inserting the job
// when its submission was never recorded.
func (s *SQLiteStore) RecordJobFinished(ctx context.Context, job *JobRecord) error {
	finished := time.Now().UTC()
	if job.FinishedAt != nil {
		finished = job.FinishedAt.UTC()
	}
	var durationMS *int64
	if job.Duration != nil {
		ms := job.Duration.Milliseconds()
		durationMS = &ms
	}

	query := `
		INSERT INTO jobs (run_id, hostname, job_ref, target_ref, state, error, submitted_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, hostname, job_ref) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms
	`

	_, err := s.db.ExecContext(ctx, query,
		job.RunID,
		job.Hostname,
		job.JobRef,
		job.TargetRef,
		job.State,
		job.Error,
		job.SubmittedAt.UTC(),
		finished,
		durationMS,
	)

	if err != nil {
		return fmt.Errorf("failed to record job outcome: %w", err)
	}

	return nil
}

// ListJobs lists the jobs of a run in submission order.
func (s *SQLiteStore) ListJobs(ctx context.Context, runID string) ([]*JobRecord, error) {
	query := `
		SELECT id, run_id, hostname, job_ref, target_ref, state, error, submitted_at, finished_at, duration_ms
		FROM jobs
		WHERE run_id = ?
		ORDER BY submitted_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		job := &JobRecord{}
		var durationMS sql.NullInt64
		err := rows.Scan(
			&job.ID,
			&job.RunID,
			&job.Hostname,
			&job.JobRef,
			&job.TargetRef,
			&job.State,
			&job.Error,
			&job.SubmittedAt,
			&job.FinishedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if durationMS.Valid {
			d := time.Duration(durationMS.Int64) * time.Millisecond
			job.Duration = &d
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.Command,
		&run.Selector,
		&run.Status,
		&run.ExitCode,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
