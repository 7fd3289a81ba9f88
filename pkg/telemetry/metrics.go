package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for a ddpctl run. A CLI process is
// short lived, so the registry is exported once to a textfile rather than
// served over HTTP.
type Metrics struct {
	config MetricsConfig

	// Command metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Engine task metrics
	engineTasks        *prometheus.CounterVec
	engineTaskDuration *prometheus.HistogramVec
	activeEngines      prometheus.Gauge
	sessionsOpened     *prometheus.CounterVec

	// Job metrics
	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	pendingJobs   prometheus.Gauge

	// REST metrics
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of commands completed, by exit code",
			},
			[]string{"command", "exit_code"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of commands in seconds",
				Buckets:   buckets,
			},
			[]string{"command"},
		),

		engineTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_tasks_total",
				Help:      "Total number of per-engine tasks, by outcome",
			},
			[]string{"outcome"},
		),
		engineTaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_task_duration_seconds",
				Help:      "Duration of per-engine tasks in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		activeEngines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_engines",
				Help:      "Current number of engines with a running task",
			},
		),
		sessionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_opened_total",
				Help:      "Total number of appliance sessions attempted, by result",
			},
			[]string{"result"},
		),

		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submitted_total",
				Help:      "Total number of appliance jobs tracked",
			},
			[]string{"engine"},
		),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_finished_total",
				Help:      "Total number of appliance jobs that reached a terminal state",
			},
			[]string{"engine", "state"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Observed time from job submission to terminal state",
				Buckets:   buckets,
			},
			[]string{"state"},
		),
		pendingJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_jobs",
				Help:      "Current number of jobs awaiting a terminal state",
			},
		),

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of appliance REST calls",
			},
			[]string{"engine", "method", "kind", "outcome"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of appliance REST calls in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "kind"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of classified errors",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.engineTasks,
		m.engineTaskDuration,
		m.activeEngines,
		m.sessionsOpened,
		m.jobsSubmitted,
		m.jobsFinished,
		m.jobDuration,
		m.pendingJobs,
		m.apiRequests,
		m.apiRequestDuration,
		m.errorsByKind,
	)

	return m, nil
}

// Command Metrics

// RecordRun records a finished command with its exit code and duration.
func (m *Metrics) RecordRun(command string, exitCode int, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(command, strconv.Itoa(exitCode)).Inc()
	m.runDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// Engine Metrics

// EngineStarted marks an engine task as running.
func (m *Metrics) EngineStarted() {
	if m == nil || m.activeEngines == nil {
		return
	}
	m.activeEngines.Inc()
}

// RecordEngineTask records a finished engine task.
func (m *Metrics) RecordEngineTask(outcome string, duration time.Duration) {
	if m == nil || m.engineTasks == nil {
		return
	}
	m.engineTasks.WithLabelValues(outcome).Inc()
	m.engineTaskDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.activeEngines.Dec()
}

// RecordSession records a session open attempt.
func (m *Metrics) RecordSession(result string) {
	if m == nil || m.sessionsOpened == nil {
		return
	}
	m.sessionsOpened.WithLabelValues(result).Inc()
}

// Job Metrics

// RecordJobSubmitted records a job handed to the tracker.
func (m *Metrics) RecordJobSubmitted(engine string) {
	if m == nil || m.jobsSubmitted == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(engine).Inc()
	m.pendingJobs.Inc()
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(engine, state string, duration time.Duration) {
	if m == nil || m.jobsFinished == nil {
		return
	}
	m.jobsFinished.WithLabelValues(engine, state).Inc()
	m.jobDuration.WithLabelValues(state).Observe(duration.Seconds())
	m.pendingJobs.Dec()
}

// REST Metrics

// ObserveRequest records one appliance REST call.
func (m *Metrics) ObserveRequest(engine, method, kind, outcome string, elapsed time.Duration) {
	if m == nil || m.apiRequests == nil {
		return
	}
	m.apiRequests.WithLabelValues(engine, method, kind, outcome).Inc()
	m.apiRequestDuration.WithLabelValues(method, kind).Observe(elapsed.Seconds())
}

// Error Metrics

// RecordError records a classified error.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the registry to the configured textfile path.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
