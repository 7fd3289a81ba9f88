package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T, textfile string) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	cfg.TextfilePath = textfile
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func TestMetricsRecordRun(t *testing.T) {
	m := newTestMetrics(t, "")

	m.RecordRun("vdb refresh", 0, time.Minute)
	m.RecordRun("vdb refresh", 3, time.Minute)
	m.RecordRun("vdb refresh", 3, time.Minute)

	if got := testutil.ToFloat64(m.runsCompleted.WithLabelValues("vdb refresh", "3")); got != 2 {
		t.Errorf("runs with exit code 3 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runsCompleted.WithLabelValues("vdb refresh", "0")); got != 1 {
		t.Errorf("runs with exit code 0 = %v, want 1", got)
	}
}

func TestMetricsGaugesBalance(t *testing.T) {
	m := newTestMetrics(t, "")

	m.EngineStarted()
	m.EngineStarted()
	m.RecordJobSubmitted("engine-a")
	if got := testutil.ToFloat64(m.activeEngines); got != 2 {
		t.Errorf("active engines = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pendingJobs); got != 1 {
		t.Errorf("pending jobs = %v, want 1", got)
	}

	m.RecordJobFinished("engine-a", "COMPLETED", time.Second)
	m.RecordEngineTask("succeeded", time.Second)
	m.RecordEngineTask("failed", time.Second)

	if got := testutil.ToFloat64(m.activeEngines); got != 0 {
		t.Errorf("active engines = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.pendingJobs); got != 0 {
		t.Errorf("pending jobs = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("engine-a", "COMPLETED")); got != 1 {
		t.Errorf("finished jobs = %v, want 1", got)
	}
}

func TestMetricsRequests(t *testing.T) {
	m := newTestMetrics(t, "")

	m.ObserveRequest("engine-a", "GET", "database", "ok", 20*time.Millisecond)
	m.ObserveRequest("engine-a", "POST", "database", "error", 20*time.Millisecond)
	m.RecordError("network")

	expected := `
# HELP ddpctl_api_requests_total Total number of appliance REST calls
# TYPE ddpctl_api_requests_total counter
ddpctl_api_requests_total{engine="engine-a",kind="database",method="GET",outcome="ok"} 1
ddpctl_api_requests_total{engine="engine-a",kind="database",method="POST",outcome="error"} 1
`
	if err := testutil.CollectAndCompare(m.apiRequests, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(m.errorsByKind.WithLabelValues("network")); got != 1 {
		t.Errorf("network errors = %v, want 1", got)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordRun("list jobs", 0, time.Second)
	m.EngineStarted()
	m.RecordEngineTask("succeeded", time.Second)
	m.ObserveRequest("engine-a", "GET", "job", "ok", time.Millisecond)

	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("WriteTextfile() error = %v", err)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordRun("list jobs", 0, time.Second)
}

func TestMetricsWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddpctl.prom")
	m := newTestMetrics(t, path)

	m.RecordRun("snapshot", 0, 5*time.Second)

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Contains(data, []byte(`ddpctl_runs_completed_total{command="snapshot",exit_code="0"} 1`)) {
		t.Errorf("textfile misses the run counter:\n%s", data)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "unknown exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, wantErr: true},
		{name: "textfile without metrics", mutate: func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.TextfilePath = "/tmp/ddpctl.prom"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddpctl.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithEngine("engine-a").Infof("took %.2f minutes", 0.5)
	logger.Debug("hidden")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "took 0.50 minutes") || !strings.Contains(out, "engine=engine-a") {
		t.Errorf("log file = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
}
