package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/appliance/fake"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/ops"
	"github.com/ddpfleet/ddpfleet/pkg/stores"
)

const testInventory = `{
    "data": [
        {
            "hostname": "eng1",
            "ip_address": "10.0.0.5",
            "username": "admin",
            "password": "s3cret",
            "use_https": false,
            "default": true,
            "is_encrypted": false
        },
        {
            "hostname": "eng2",
            "ip_address": "10.0.0.6",
            "username": "admin",
            "password": "other",
            "use_https": false,
            "default": false,
            "is_encrypted": false
        }
    ]
}
`

// harness runs the root command against fake appliances.
type harness struct {
	t         *testing.T
	fleet     map[string]*fake.Appliance
	inventory string
	logdir    string
	stdin     io.Reader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(inventory.KeyEnv, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "dxtools.conf")
	if err := os.WriteFile(path, []byte(testInventory), 0o600); err != nil {
		t.Fatalf("failed to write inventory: %v", err)
	}
	return &harness{
		t:         t,
		fleet:     map[string]*fake.Appliance{"eng1": fake.New(), "eng2": fake.New()},
		inventory: path,
		logdir:    filepath.Join(dir, "logs"),
		stdin:     strings.NewReader(""),
	}
}

func (h *harness) dial(rec inventory.EngineRecord) (appliance.Client, error) {
	a, ok := h.fleet[rec.Hostname]
	if !ok {
		return nil, fmt.Errorf("no appliance for %s", rec.Hostname)
	}
	return a, nil
}

// run executes ddpctl with args and returns its exit code and stdout.
func (h *harness) run(ctx context.Context, args ...string) (int, string) {
	h.t.Helper()
	a := &app{v: viper.New(), version: "test", dial: h.dial}
	root := newRootCommand(a, "none", "never")

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(h.stdin)
	root.SetArgs(append([]string{"--config", h.inventory, "--logdir", h.logdir, "--poll", "1"}, args...))

	return exitCode(root.ExecuteContext(ctx)), out.String()
}

func (h *harness) log() string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.logdir, LogFileName))
	if err != nil {
		h.t.Fatalf("failed to read log file: %v", err)
	}
	return string(data)
}

func (h *harness) addDatabase(hostname, name string) {
	h.fleet[hostname].Add(appliance.KindDatabase, "ORACLE_DB_CONTAINER",
		appliance.Database{Name: name, Type: "OracleDatabaseContainer"})
}

func (h *harness) addEnvironment(hostname, name string) {
	h.fleet[hostname].Add(appliance.KindEnvironment, "UNIX_HOST_ENVIRONMENT",
		appliance.Environment{Name: name, Type: "UnixHostEnvironment", Enabled: true})
}

func TestListDatabasesAcrossEngines(t *testing.T) {
	h := newHarness(t)
	h.addDatabase("eng2", "orcl2")
	h.addDatabase("eng1", "orcl1")

	code, out := h.run(context.Background(), "--all", "--json", "list", "databases")
	if code != engine.ExitOK {
		t.Fatalf("exit code = %d, want %d", code, engine.ExitOK)
	}

	var rows []ops.DatabaseRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Engine != "eng1" || rows[0].Name != "orcl1" || rows[1].Engine != "eng2" {
		t.Errorf("rows not sorted by engine: %+v", rows)
	}
	logged := h.log()
	if !strings.Contains(logged, "took") {
		t.Error("elapsed time not logged")
	}
	if !strings.Contains(logged, "run_id=") || !strings.Contains(logged, "command=") {
		t.Error("run fields missing from the log")
	}
}

func TestListDatabasesTable(t *testing.T) {
	h := newHarness(t)
	h.addDatabase("eng1", "orcl1")

	code, out := h.run(context.Background(), "list", "databases")
	if code != engine.ExitOK {
		t.Fatalf("exit code = %d, want %d", code, engine.ExitOK)
	}
	if !strings.HasPrefix(out, "ENGINE") || !strings.Contains(out, "orcl1") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if len(h.fleet["eng2"].Calls()) != 0 {
		t.Error("non-default engine was contacted")
	}
}

func TestSelectorErrorsExitWithConfigCode(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "engine and all", args: []string{"--all", "--engine", "eng1", "list", "jobs"}},
		{name: "unknown engine", args: []string{"--engine", "nope", "list", "jobs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			code, _ := h.run(context.Background(), tt.args...)
			if code != engine.ExitConfig {
				t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
			}
			if !strings.Contains(h.log(), "took") {
				t.Error("elapsed time not logged on failure")
			}
			for host, a := range h.fleet {
				if len(a.Calls()) != 0 {
					t.Errorf("engine %s contacted", host)
				}
			}
		})
	}
}

func TestMissingInventoryExitsWithConfigCode(t *testing.T) {
	h := newHarness(t)
	h.inventory = filepath.Join(t.TempDir(), "missing.conf")

	code, _ := h.run(context.Background(), "list", "jobs")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
}

func TestLoginFailureOnOneEngine(t *testing.T) {
	h := newHarness(t)
	h.fleet["eng2"].LoginErr = &appliance.RequestError{
		ID:         "exception.webservices.login.failed",
		Details:    "invalid credentials",
		StatusCode: 401,
	}
	h.addEnvironment("eng1", "devhost")
	h.addEnvironment("eng2", "devhost")

	code, _ := h.run(context.Background(), "--all", "environment", "refresh", "--name", "devhost")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
	if calls := h.fleet["eng1"].CallsTo("refresh", appliance.KindEnvironment); len(calls) != 1 {
		t.Errorf("healthy engine got %d refresh calls, want 1", len(calls))
	}
	if !strings.Contains(h.log(), "eng2") {
		t.Error("failed engine not logged")
	}
}

func TestFailedJobExitsWithJobCode(t *testing.T) {
	h := newHarness(t)
	h.addEnvironment("eng1", "devhost")
	h.fleet["eng1"].JobStates = []appliance.JobState{appliance.JobFailed}

	code, _ := h.run(context.Background(), "environment", "refresh", "--name", "devhost")
	if code != engine.ExitJob {
		t.Errorf("exit code = %d, want %d", code, engine.ExitJob)
	}
}

func TestNotFoundExitsWithConfigCode(t *testing.T) {
	h := newHarness(t)

	code, _ := h.run(context.Background(), "environment", "refresh", "--name", "ghost")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
}

func TestInterruptedRunExitsZero(t *testing.T) {
	h := newHarness(t)
	h.addEnvironment("eng1", "devhost")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := h.run(ctx, "--all", "environment", "refresh", "--name", "devhost")
	if code != engine.ExitOK {
		t.Errorf("exit code = %d, want %d", code, engine.ExitOK)
	}
	if calls := h.fleet["eng1"].CallsTo("refresh", appliance.KindEnvironment); len(calls) != 0 {
		t.Error("engine started after interrupt")
	}
	if !strings.Contains(h.log(), "took") {
		t.Error("elapsed time not logged after interrupt")
	}
}

func TestUsageErrorsExitWithConfigCode(t *testing.T) {
	h := newHarness(t)

	code, _ := h.run(context.Background(), "environment", "refresh")
	if code != engine.ExitConfig {
		t.Errorf("missing required flag: exit code = %d, want %d", code, engine.ExitConfig)
	}

	code, _ = h.run(context.Background(), "--poll", "0", "list", "jobs")
	if code != engine.ExitConfig {
		t.Errorf("zero poll interval: exit code = %d, want %d", code, engine.ExitConfig)
	}
}

func TestHistoryRecordsRuns(t *testing.T) {
	h := newHarness(t)
	h.addEnvironment("eng1", "devhost")
	ledger := filepath.Join(t.TempDir(), "history.db")

	code, _ := h.run(context.Background(), "--history", ledger, "environment", "refresh", "--name", "devhost")
	if code != engine.ExitOK {
		t.Fatalf("exit code = %d, want %d", code, engine.ExitOK)
	}

	code, out := h.run(context.Background(), "--history", ledger, "--json", "history", "list")
	if code != engine.ExitOK {
		t.Fatalf("history list exit code = %d", code)
	}
	var runs []*stores.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Command != "environment refresh" || run.Status != stores.RunStatusSucceeded {
		t.Errorf("run = %+v", run)
	}
	if run.ExitCode == nil || *run.ExitCode != engine.ExitOK {
		t.Errorf("exit code not recorded: %+v", run.ExitCode)
	}

	code, out = h.run(context.Background(), "--history", ledger, "--json", "history", "show", run.ID)
	if code != engine.ExitOK {
		t.Fatalf("history show exit code = %d", code)
	}
	var detail runDetail
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(detail.Engines) != 1 || detail.Engines[0].Hostname != "eng1" {
		t.Errorf("engines = %+v", detail.Engines)
	}
	if len(detail.Jobs) != 1 {
		t.Errorf("got %d jobs, want 1", len(detail.Jobs))
	}

	code, _ = h.run(context.Background(), "--history", ledger, "history", "show", "no-such-run")
	if code != engine.ExitConfig {
		t.Errorf("unknown run: exit code = %d, want %d", code, engine.ExitConfig)
	}
}

func TestHistoryRequiresLedger(t *testing.T) {
	h := newHarness(t)

	code, _ := h.run(context.Background(), "history", "list")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
}

func TestUnopenableLedgerDoesNotFailCommand(t *testing.T) {
	h := newHarness(t)
	h.addEnvironment("eng1", "devhost")
	ledger := filepath.Join(t.TempDir(), "missing", "dir", "history.db")

	if store, err := openStore(context.Background(), ledger); err == nil {
		store.Close()
		t.Fatal("expected opening a ledger in a missing directory to fail")
	}

	code, _ := h.run(context.Background(), "--history", ledger, "environment", "refresh", "--name", "devhost")
	if code != engine.ExitOK {
		t.Errorf("exit code = %d, want %d", code, engine.ExitOK)
	}
	if !strings.Contains(h.log(), "run history disabled") {
		t.Error("ledger failure not logged")
	}
}

func TestInventoryList(t *testing.T) {
	h := newHarness(t)

	code, out := h.run(context.Background(), "--json", "inventory", "list")
	if code != engine.ExitOK {
		t.Fatalf("exit code = %d, want %d", code, engine.ExitOK)
	}
	if strings.Contains(out, "s3cret") || strings.Contains(out, "password") {
		t.Errorf("credentials leaked:\n%s", out)
	}
	var rows []inventoryRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 || !rows[0].Default {
		t.Errorf("rows = %+v", rows)
	}

	raw, err := os.ReadFile(h.inventory)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("s3cret")) {
		t.Error("inventory still holds plaintext passwords after load")
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: engine.ExitOK},
		{name: "exit error", err: &exitError{code: engine.ExitJob, err: errors.New("job failed")}, want: engine.ExitJob},
		{name: "usage error", err: errors.New(`unknown flag: --bogus`), want: engine.ExitConfig},
		{name: "network", err: engine.NewNetworkError("unreachable", nil), want: engine.ExitInternal},
		{name: "request", err: engine.Classify(&appliance.RequestError{ID: "exception.validation"}, "create"), want: engine.ExitInternal},
		{name: "interrupted", err: engine.NewInterruptedError("stopped", context.Canceled), want: engine.ExitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHelpListsExitCodes(t *testing.T) {
	h := newHarness(t)

	code, out := h.run(context.Background(), "--help")
	if code != engine.ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"0  success", "1  internal, network or request failure", "3  an appliance job failed", "where the classic toolkit exits 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("help does not mention %q", want)
		}
	}
}

func TestGuardPolicyRefusesFleetWideDelete(t *testing.T) {
	h := newHarness(t)
	h.addEnvironment("eng1", "devhost")
	h.addEnvironment("eng2", "devhost")

	code, _ := h.run(context.Background(), "--all", "--policy", "builtin:no-fleet-wide-deletes",
		"environment", "delete", "--name", "devhost")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
	for host, a := range h.fleet {
		if calls := a.CallsTo("delete", appliance.KindEnvironment); len(calls) != 0 {
			t.Errorf("engine %s got a delete despite the policy", host)
		}
	}
	if !strings.Contains(h.log(), "no-fleet-wide-deletes") {
		t.Error("refusal not logged")
	}

	code, _ = h.run(context.Background(), "--engine", "eng2", "--policy", "builtin:no-fleet-wide-deletes",
		"environment", "delete", "--name", "devhost")
	if code != engine.ExitOK {
		t.Errorf("single engine delete: exit code = %d, want %d", code, engine.ExitOK)
	}
	if calls := h.fleet["eng2"].CallsTo("delete", appliance.KindEnvironment); len(calls) != 1 {
		t.Errorf("eng2 got %d deletes, want 1", len(calls))
	}
}

func TestUnknownGuardPolicyExitsWithConfigCode(t *testing.T) {
	h := newHarness(t)

	code, _ := h.run(context.Background(), "--policy", "builtin:nope", "list", "jobs")
	if code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
}
