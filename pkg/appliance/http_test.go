package appliance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type applianceServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]string
	status   map[string]int
}

func newApplianceServer(t *testing.T) (*applianceServer, *HTTPClient) {
	t.Helper()
	s := &applianceServer{routes: make(map[string]string), status: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(Config{BaseURL: srv.URL, Engine: "eng1", RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	return s, client
}

func (s *applianceServer) route(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+apiRoot+"/"+path] = body
	s.status[method+" "+apiRoot+"/"+path] = status
}

func (s *applianceServer) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	key := r.Method + " " + r.URL.Path
	resp, ok := s.routes[key]
	status := s.status[key]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"type":"ErrorResult","status":"ERROR","error":{"id":"exception.webservices.notfound","details":"no route"}}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (s *applianceServer) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestHTTPClientLogin(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("POST", "session", 200, `{"type":"OKResult","status":"OK","result":{"type":"APISession"}}`)
	srv.route("POST", "login", 200, `{"type":"OKResult","status":"OK","result":"USER-2"}`)

	ctx := context.Background()
	if err := client.StartSession(ctx); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := client.Login(ctx, "admin", NewPasswordCredential([]byte("pw"))); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	req := srv.last()
	if req.Body["target"] != "DOMAIN" {
		t.Errorf("login target = %v, want DOMAIN", req.Body["target"])
	}
	if req.Body["username"] != "admin" || req.Body["password"] != "pw" {
		t.Errorf("unexpected login body: %v", req.Body)
	}
}

func TestHTTPClientLoginRejected(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("POST", "login", 401, `{"type":"ErrorResult","status":"ERROR","error":{"id":"exception.webservices.login.failed","details":"Invalid username or password."}}`)

	err := client.Login(context.Background(), "admin", NewPasswordCredential([]byte("wrong")))
	if err == nil {
		t.Fatal("expected login error")
	}
	if !IsAuthFailure(err) {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestHTTPClientCreateReturnsJob(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("POST", "database/ORACLE_DB_CONTAINER-4/refresh", 200,
		`{"type":"OKResult","status":"OK","result":"","job":"JOB-81","action":"ACTION-5"}`)

	res, err := client.Action(context.Background(), KindDatabase, "ORACLE_DB_CONTAINER-4", "refresh",
		RefreshParameters{Type: "OracleRefreshParameters", TimeflowPointParameters: SemanticPoint("ORACLE_DB_CONTAINER-1", LocationLatestSnapshot)})
	if err != nil {
		t.Fatalf("Action failed: %v", err)
	}
	if res.Job != "JOB-81" {
		t.Errorf("Job = %q, want JOB-81", res.Job)
	}
	if res.Reference.Kind != EngineOracle {
		t.Errorf("Reference kind = %s, want oracle", res.Reference.Kind)
	}

	params, ok := srv.last().Body["timeflowPointParameters"].(map[string]any)
	if !ok {
		t.Fatalf("missing timeflowPointParameters in %v", srv.last().Body)
	}
	if params["type"] != "TimeflowPointSemantic" || params["location"] != "LATEST_SNAPSHOT" {
		t.Errorf("unexpected timeflow point: %v", params)
	}
}

func TestHTTPClientListWithQuery(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("GET", "snapshot", 200,
		`{"type":"ListResult","status":"OK","result":[{"reference":"SNAP-1","name":"@2024-01-05"},{"reference":"SNAP-2","name":"@2024-02-01"}]}`)

	var snaps []Snapshot
	if err := client.List(context.Background(), KindSnapshot, Query{"database": "ORACLE_DB_CONTAINER-1"}, &snaps); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Reference != "SNAP-1" {
		t.Errorf("unexpected snapshots: %+v", snaps)
	}
	if srv.last().Query != "database=ORACLE_DB_CONTAINER-1" {
		t.Errorf("query = %q", srv.last().Query)
	}
}

func TestHTTPClientJob(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("GET", "job/JOB-7", 200,
		`{"type":"OKResult","status":"OK","result":{"reference":"JOB-7","jobState":"FAILED","target":"MSSQL_DB_CONTAINER-2","events":[{"eventType":"ERROR","messageDetails":"disk full"}]}}`)

	job, err := client.Job(context.Background(), "JOB-7")
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if job.JobState != JobFailed {
		t.Errorf("JobState = %s, want FAILED", job.JobState)
	}
	if job.LastError() != "disk full" {
		t.Errorf("LastError = %q", job.LastError())
	}
}

func TestHTTPClientMalformedResponse(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("GET", "system", 502, `<html>bad gateway</html>`)

	err := client.Ping(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", httpErr.StatusCode)
	}
	if !IsTransport(err) {
		t.Error("5xx should be reported as transport failure")
	}
}

func TestHTTPClientCanceledBeforeCall(t *testing.T) {
	srv, client := newApplianceServer(t)
	srv.route("GET", "system", 200, `{"type":"OKResult","status":"OK","result":{}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ping on canceled context = %v, want context.Canceled", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.requests) != 0 {
		t.Errorf("expected no request after cancellation, got %d", len(srv.requests))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"address", Config{Address: "10.0.0.1"}, false},
		{"base url", Config{BaseURL: "http://127.0.0.1:8080"}, false},
		{"missing address", Config{}, true},
		{"negative timeout", Config{Address: "a", RequestTimeout: -time.Second}, true},
		{"negative rate", Config{Address: "a", RateLimit: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
