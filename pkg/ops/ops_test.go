package ops

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/appliance/fake"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/timeflow"
)

func newSession(a *fake.Appliance) *engine.Session {
	tracker := engine.NewTracker(engine.TrackerConfig{PollInterval: -1})
	return engine.NewSession(inventory.EngineRecord{Hostname: "eng1"}, a, tracker)
}

// onlyCall returns the single recorded call of method on kind.
func onlyCall(t *testing.T, a *fake.Appliance, method string, kind appliance.Kind) fake.Call {
	t.Helper()
	calls := a.CallsTo(method, kind)
	if len(calls) != 1 {
		t.Fatalf("expected one %s call on %s, got %d", method, kind, len(calls))
	}
	return calls[0]
}

func decodeBody(t *testing.T, c fake.Call) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(c.Body, &m); err != nil {
		t.Fatalf("body of %s is not an object: %v", c.Method, err)
	}
	return m
}

// field walks nested objects of m along path.
func field(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

func password(s string) appliance.Credential {
	return appliance.NewPasswordCredential([]byte(s))
}

func addVDB(a *fake.Appliance) {
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-1", Name: "prod", Type: "OracleDatabaseContainer"})
	a.Add(appliance.KindDatabase, "", appliance.Database{
		Reference:          "ORACLE_DB_CONTAINER-2",
		Name:               "12cvdb",
		Type:               "OracleDatabaseContainer",
		ProvisionContainer: "ORACLE_DB_CONTAINER-1",
		CurrentTimeflow:    "ORACLE_TIMEFLOW-20",
	})
	a.Add(appliance.KindDatabase, "", appliance.Database{
		Reference:          "MSSQL_DB_CONTAINER-3",
		Name:               "sqlvdb",
		Type:               "MSSqlDatabaseContainer",
		ProvisionContainer: "MSSQL_DB_CONTAINER-4",
	})
}

func TestRefreshOracleToLatestSnapshot(t *testing.T) {
	a := fake.New()
	addVDB(a)
	s := newSession(a)

	res, err := Refresh(context.Background(), s, RefreshArgs{Name: "12cvdb", Point: timeflow.LatestPoint{Of: timeflow.KindSnapshot}})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	call := onlyCall(t, a, "refresh", appliance.KindDatabase)
	if call.Ref != "ORACLE_DB_CONTAINER-2" {
		t.Errorf("refresh issued on %s", call.Ref)
	}
	body := decodeBody(t, call)
	if body["type"] != "OracleRefreshParameters" {
		t.Errorf("body type = %v", body["type"])
	}
	if got := field(body, "timeflowPointParameters", "container"); got != "ORACLE_DB_CONTAINER-1" {
		t.Errorf("point container = %v", got)
	}
	if got := field(body, "timeflowPointParameters", "location"); got != appliance.LocationLatestSnapshot {
		t.Errorf("point location = %v", got)
	}

	if s.Jobs().Len() != 1 || s.Jobs().Handles()[0].Reference != res.Job {
		t.Errorf("job %s not queued: %d handle(s)", res.Job, s.Jobs().Len())
	}
}

func TestRefreshGenericShape(t *testing.T) {
	a := fake.New()
	addVDB(a)
	s := newSession(a)

	if _, err := Refresh(context.Background(), s, RefreshArgs{Name: "sqlvdb"}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	body := decodeBody(t, onlyCall(t, a, "refresh", appliance.KindDatabase))
	if body["type"] != "RefreshParameters" {
		t.Errorf("body type = %v", body["type"])
	}
	if got := field(body, "timeflowPointParameters", "container"); got != "MSSQL_DB_CONTAINER-4" {
		t.Errorf("point container = %v", got)
	}
}

func TestRefreshAmbiguousSnapshotIssuesNoCall(t *testing.T) {
	a := fake.New()
	addVDB(a)
	for _, name := range []string{"@2024-01-05T10:00:00.000Z", "@2024-01-12T10:00:00.000Z"} {
		a.Add(appliance.KindSnapshot, "ORACLE_SNAPSHOT", appliance.Snapshot{Name: name, Container: "ORACLE_DB_CONTAINER-1"})
	}
	s := newSession(a)

	_, err := Refresh(context.Background(), s, RefreshArgs{Name: "12cvdb", Point: timeflow.NamedSnapshot{Name: "@2024-01"}})
	if !engine.IsAmbiguous(err) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
	if code := engine.ExitCodeFor(err); code != engine.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, engine.ExitConfig)
	}
	for _, c := range a.Calls() {
		if c.Method != "list" && c.Method != "get" {
			t.Errorf("unexpected %s call on %s", c.Method, c.Kind)
		}
	}
	if s.Jobs().Len() != 0 {
		t.Errorf("job set = %d", s.Jobs().Len())
	}
}

// jobLog records what a tracker reports to its observers.
type jobLog struct {
	submitted []engine.JobHandle
	finished  []engine.JobOutcome
}

func (l *jobLog) JobSubmitted(h engine.JobHandle)  { l.submitted = append(l.submitted, h) }
func (l *jobLog) JobFinished(o engine.JobOutcome) { l.finished = append(l.finished, o) }

func TestRefreshWaitsForRunningJob(t *testing.T) {
	a := fake.New()
	addVDB(a)
	a.AddJob("JOB-7", "ORACLE_DB_CONTAINER-2", appliance.JobRunning, appliance.JobRunning, appliance.JobCompleted)
	observed := &jobLog{}
	tracker := engine.NewTracker(engine.TrackerConfig{PollInterval: -1}, observed)
	s := engine.NewSession(inventory.EngineRecord{Hostname: "eng1"}, a, tracker)

	if _, err := Refresh(context.Background(), s, RefreshArgs{Name: "12cvdb"}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := s.DrainJobs(context.Background()); err != nil {
		t.Fatalf("DrainJobs failed: %v", err)
	}

	// The job that was already running belongs to someone else.
	for _, o := range s.Outcomes() {
		if o.Handle.Reference == "JOB-7" {
			t.Errorf("outcome recorded for job JOB-7 the run did not start")
		}
		if o.Handle.SubmittedAt.IsZero() {
			t.Errorf("outcome for %s has no submission time", o.Handle.Reference)
		}
	}
	for _, o := range observed.finished {
		if o.Handle.Reference == "JOB-7" {
			t.Errorf("observers told about job JOB-7")
		}
		if o.Duration < 0 || o.Duration > time.Hour {
			t.Errorf("duration of %s = %v", o.Handle.Reference, o.Duration)
		}
	}
	if len(observed.finished) != len(observed.submitted) {
		t.Errorf("observers saw %d submissions and %d finishes", len(observed.submitted), len(observed.finished))
	}

	lastPoll, refresh := -1, -1
	for i, c := range a.Calls() {
		switch {
		case c.Method == "job" && c.Ref == "JOB-7":
			lastPoll = i
		case c.Method == "refresh":
			refresh = i
		}
	}
	if lastPoll < 0 || refresh < lastPoll {
		t.Errorf("refresh (call %d) issued before running job finished (call %d)", refresh, lastPoll)
	}
	if state, _ := a.JobState("JOB-7"); state != appliance.JobCompleted {
		t.Errorf("running job state = %s", state)
	}
}

func TestRewind(t *testing.T) {
	a := fake.New()
	addVDB(a)
	s := newSession(a)

	_, err := Rewind(context.Background(), s, RewindArgs{Name: "12cvdb", Point: timeflow.AtLocation{Timeflow: "ORACLE_TIMEFLOW-20", Location: "4711"}})
	if err != nil {
		t.Fatalf("Rewind failed: %v", err)
	}
	body := decodeBody(t, onlyCall(t, a, "rollback", appliance.KindDatabase))
	if body["type"] != "OracleRollbackParameters" || field(body, "timeflowPointParameters", "location") != "4711" {
		t.Errorf("body = %v", body)
	}

	if _, err := Rewind(context.Background(), s, RewindArgs{Name: "prod", Point: timeflow.LatestPoint{Of: timeflow.KindTime}}); !engine.IsConfig(err) {
		t.Errorf("rewinding a dSource: expected config error, got %v", err)
	}
	if _, err := Rewind(context.Background(), s, RewindArgs{Name: "12cvdb"}); !engine.IsConfig(err) {
		t.Errorf("rewind without point: expected config error, got %v", err)
	}
}

func provisionFixture() *fake.Appliance {
	a := fake.New()
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-1", Name: "prod", Type: "OracleDatabaseContainer"})
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "APPDATA_CONTAINER-2", Name: "files", Type: "AppDataContainer"})
	a.Add(appliance.KindGroup, "", appliance.Object{Reference: "GROUP-1", Name: "Dev"})
	a.Add(appliance.KindEnvironment, "", appliance.Environment{Reference: "UNIX_HOST_ENVIRONMENT-3", Name: "target", Type: "UnixHostEnvironment"})
	a.Add(appliance.KindRepository, "", appliance.Repository{Reference: "ORACLE_INSTALL-5", Type: "OracleInstall", Environment: "UNIX_HOST_ENVIRONMENT-3", InstallationHome: "/u01/home"})
	a.Add(appliance.KindRepository, "", appliance.Repository{Reference: "APPDATA_REPOSITORY-6", Name: "Unstructured Files", Type: "AppDataRepository", Environment: "UNIX_HOST_ENVIRONMENT-3"})
	return a
}

func TestProvisionOracle(t *testing.T) {
	a := provisionFixture()
	s := newSession(a)

	_, err := Provision(context.Background(), s, ProvisionArgs{
		Source:      "prod",
		Name:        "vdb1",
		Group:       "Dev",
		Environment: "target",
		Repository:  "/u01/home",
		MountBase:   "/mnt/provision",
	})
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	body := decodeBody(t, onlyCall(t, a, "provision", appliance.KindDatabase))
	checks := map[string]struct {
		got  any
		want any
	}{
		"type":       {body["type"], "OracleProvisionParameters"},
		"group":      {field(body, "container", "group"), "GROUP-1"},
		"repository": {field(body, "sourceConfig", "repository"), "ORACLE_INSTALL-5"},
		"instance":   {field(body, "sourceConfig", "instance", "instanceName"), "vdb1"},
		"mountBase":  {field(body, "source", "mountBase"), "/mnt/provision"},
		"point":      {field(body, "timeflowPointParameters", "location"), appliance.LocationLatestSnapshot},
		"container":  {field(body, "timeflowPointParameters", "container"), "ORACLE_DB_CONTAINER-1"},
	}
	for name, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", name, c.got, c.want)
		}
	}
}

func TestProvisionVFilesRequiresMountPath(t *testing.T) {
	a := provisionFixture()
	s := newSession(a)
	args := ProvisionArgs{
		Source:      "files",
		Name:        "vfiles1",
		Group:       "Dev",
		Environment: "target",
		Repository:  "Unstructured Files",
	}

	if _, err := Provision(context.Background(), s, args); !engine.IsConfig(err) {
		t.Fatalf("expected config error without mount path, got %v", err)
	}
	if calls := a.CallsTo("provision", appliance.KindDatabase); len(calls) != 0 {
		t.Fatalf("provision issued without mount path")
	}

	args.MountPath = "/mnt/vfiles1"
	if _, err := Provision(context.Background(), s, args); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	body := decodeBody(t, onlyCall(t, a, "provision", appliance.KindDatabase))
	if body["type"] != "AppDataProvisionParameters" || field(body, "sourceConfig", "path") != "/mnt/vfiles1" {
		t.Errorf("body = %v", body)
	}
	if field(body, "sourceConfig", "repository") != "APPDATA_REPOSITORY-6" {
		t.Errorf("repository = %v", field(body, "sourceConfig", "repository"))
	}
}

func TestProvisionValidation(t *testing.T) {
	s := newSession(provisionFixture())
	_, err := Provision(context.Background(), s, ProvisionArgs{Source: "prod"})
	var e *engine.Error
	if !errors.As(err, &e) || e.Kind != engine.KindConfig || e.Code != engine.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSnapshotGroupInApplianceOrder(t *testing.T) {
	a := fake.New()
	a.Add(appliance.KindGroup, "", appliance.Object{Reference: "GROUP-1", Name: "Nightly"})
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "MSSQL_DB_CONTAINER-8", Name: "b", Group: "GROUP-1"})
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-2", Name: "a", Group: "GROUP-1"})
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-5", Name: "c", Group: "GROUP-9"})
	s := newSession(a)

	results, err := Snapshot(context.Background(), s, SnapshotArgs{Group: "Nightly"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(results) != 2 || s.Jobs().Len() != 2 {
		t.Fatalf("results = %d, queued = %d", len(results), s.Jobs().Len())
	}
	syncs := a.CallsTo("sync", appliance.KindDatabase)
	if len(syncs) != 2 || syncs[0].Ref != "MSSQL_DB_CONTAINER-8" || syncs[1].Ref != "ORACLE_DB_CONTAINER-2" {
		t.Fatalf("syncs = %+v", syncs)
	}
	if typ := decodeBody(t, syncs[0])["type"]; typ != "MSSqlSyncParameters" {
		t.Errorf("sync type = %v", typ)
	}
	if typ := decodeBody(t, syncs[1])["type"]; typ != "OracleSyncParameters" {
		t.Errorf("sync type = %v", typ)
	}

	if _, err := Snapshot(context.Background(), s, SnapshotArgs{Name: "a", Group: "Nightly"}); !engine.IsConfig(err) {
		t.Errorf("name and group together: expected config error, got %v", err)
	}
	if _, err := Snapshot(context.Background(), s, SnapshotArgs{}); !engine.IsConfig(err) {
		t.Errorf("neither name nor group: expected config error, got %v", err)
	}
}

func TestDeleteInSynchronousModeReportsJobFailure(t *testing.T) {
	a := fake.New()
	a.JobStates = []appliance.JobState{appliance.JobRunning, appliance.JobFailed}
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-9", Name: "old"})
	s := newSession(a)

	err := s.WithJobMode(engine.JobModeSynchronous, func() error {
		_, err := Delete(context.Background(), s, DeleteArgs{Name: "old", Force: true})
		return err
	})
	if !engine.IsJob(err) {
		t.Fatalf("expected job error, got %v", err)
	}
	if code := engine.ExitCodeFor(err); code != engine.ExitJob {
		t.Errorf("exit code = %d", code)
	}
	if s.Jobs().Len() != 0 {
		t.Errorf("synchronous job was queued")
	}
	body := decodeBody(t, onlyCall(t, a, "delete", appliance.KindDatabase))
	if body["type"] != "OracleDeleteParameters" || body["force"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestSetSourceState(t *testing.T) {
	a := fake.New()
	a.Add(appliance.KindDatabase, "", appliance.Database{Reference: "ORACLE_DB_CONTAINER-2", Name: "12cvdb"})
	a.Add(appliance.KindSource, "", appliance.Source{Reference: "ORACLE_VIRTUAL_SOURCE-2", Name: "12cvdb", Container: "ORACLE_DB_CONTAINER-2"})
	s := newSession(a)

	tests := []struct {
		action SourceAction
		body   string
	}{
		{SourceStop, "StopParameters"},
		{SourceStart, "StartParameters"},
		{SourceDisable, "SourceDisableParameters"},
		{SourceEnable, "SourceEnableParameters"},
	}
	for _, tt := range tests {
		if _, err := SetSourceState(context.Background(), s, "12cvdb", tt.action); err != nil {
			t.Fatalf("%s failed: %v", tt.action, err)
		}
		call := onlyCall(t, a, string(tt.action), appliance.KindSource)
		if call.Ref != "ORACLE_VIRTUAL_SOURCE-2" || decodeBody(t, call)["type"] != tt.body {
			t.Errorf("%s: call = %+v", tt.action, call)
		}
	}
	if _, err := SetSourceState(context.Background(), s, "12cvdb", "restart"); !engine.IsConfig(err) {
		t.Errorf("unknown action: expected config error, got %v", err)
	}
}

func TestLinkOracle(t *testing.T) {
	a := fake.New()
	a.Add(appliance.KindGroup, "", appliance.Object{Reference: "GROUP-1", Name: "Sources"})
	a.Add(appliance.KindEnvironment, "", appliance.Environment{Reference: "UNIX_HOST_ENVIRONMENT-1", Name: "src"})
	a.Add(appliance.KindRepository, "", appliance.Repository{Reference: "ORACLE_INSTALL-2", Type: "OracleInstall", Environment: "UNIX_HOST_ENVIRONMENT-1", InstallationHome: "/u01/home"})
	a.Add(appliance.KindSourceConfig, "", appliance.SourceConfig{Reference: "ORACLE_SINGLE_CONFIG-3", Name: "orcl", Repository: "ORACLE_INSTALL-2"})
	s := newSession(a)

	args := LinkArgs{
		Type:         appliance.EngineOracle,
		Name:         "orcl_ds",
		Group:        "Sources",
		Environment:  "src",
		Repository:   "/u01/home",
		SourceConfig: "orcl",
		DBUser:       "delphixdb",
		LogSync:      true,
	}
	if _, err := Link(context.Background(), s, args); !engine.IsConfig(err) {
		t.Fatalf("link without password: expected config error, got %v", err)
	}

	args.DBPassword = password("secret")
	if _, err := Link(context.Background(), s, args); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	body := decodeBody(t, onlyCall(t, a, "link", appliance.KindDatabase))
	if field(body, "linkData", "type") != "OracleLinkData" || field(body, "linkData", "config") != "ORACLE_SINGLE_CONFIG-3" {
		t.Errorf("linkData = %v", body["linkData"])
	}
	if field(body, "linkData", "dbCredentials", "password") != "secret" {
		t.Errorf("credential not sent")
	}
	if field(body, "linkData", "sourcingPolicy", "logsyncEnabled") != true {
		t.Errorf("log sync not enabled")
	}
	if body["group"] != "GROUP-1" {
		t.Errorf("group = %v", body["group"])
	}
}

func TestLinkMSSql(t *testing.T) {
	a := fake.New()
	a.Add(appliance.KindGroup, "", appliance.Object{Reference: "GROUP-1", Name: "Sources"})
	a.Add(appliance.KindEnvironment, "", appliance.Environment{Reference: "WINDOWS_HOST_ENVIRONMENT-1", Name: "sqlsrc"})
	a.Add(appliance.KindEnvironment, "", appliance.Environment{Reference: "WINDOWS_HOST_ENVIRONMENT-2", Name: "staging"})
	a.Add(appliance.KindRepository, "", appliance.Repository{Reference: "MSSQL_INSTANCE-1", Type: "MSSqlInstance", Environment: "WINDOWS_HOST_ENVIRONMENT-1", InstanceName: "MSSQLSERVER"})
	a.Add(appliance.KindRepository, "", appliance.Repository{Reference: "MSSQL_INSTANCE-2", Type: "MSSqlInstance", Environment: "WINDOWS_HOST_ENVIRONMENT-2", InstanceName: "STAGE"})
	a.Add(appliance.KindSourceConfig, "", appliance.SourceConfig{Reference: "MSSQL_SINGLE_CONFIG-4", Name: "sales", Repository: "MSSQL_INSTANCE-1"})
	s := newSession(a)

	_, err := Link(context.Background(), s, LinkArgs{
		Type:               appliance.EngineMSSql,
		Name:               "sales_ds",
		Group:              "Sources",
		Environment:        "sqlsrc",
		Repository:         "MSSQLSERVER",
		SourceConfig:       "sales",
		StagingEnvironment: "staging",
		StagingInstance:    "STAGE",
		BackupPath:         `\\backup\sales`,
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	data := decodeBody(t, onlyCall(t, a, "link", appliance.KindDatabase))["linkData"].(map[string]any)
	if data["type"] != "MSSqlLinkData" || data["pptRepository"] != "MSSQL_INSTANCE-2" || data["config"] != "MSSQL_SINGLE_CONFIG-4" {
		t.Errorf("linkData = %v", data)
	}
	if _, ok := data["dbCredentials"]; ok {
		t.Errorf("credentials sent without a database user")
	}
}

func TestLinkRejectsUnsupportedType(t *testing.T) {
	s := newSession(fake.New())
	_, err := Link(context.Background(), s, LinkArgs{
		Type: appliance.EngineASE, Name: "x", Group: "g", Environment: "e", Repository: "r", SourceConfig: "c",
	})
	if !engine.IsConfig(err) {
		t.Errorf("expected config error, got %v", err)
	}
}
