// Package fake provides an in-memory appliance implementing appliance.Client.
// Objects are kept per collection in insertion order, mutating calls start
// jobs whose state sequence can be scripted, and every call is recorded.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
)

// Call is one recorded client call.
type Call struct {
	Method string
	Kind   appliance.Kind
	Ref    string
	Action string
	Body   json.RawMessage
}

// Handler overrides the default behaviour of a mutating call.
type Handler func(ref string, body json.RawMessage) (appliance.Result, error)

type job struct {
	ref    string
	target string
	states []appliance.JobState
	polls  int
}

func (j *job) current() appliance.JobState {
	idx := j.polls
	if idx >= len(j.states) {
		idx = len(j.states) - 1
	}
	return j.states[idx]
}

// Appliance is a scripted in-memory appliance.
type Appliance struct {
	mu sync.Mutex

	objects map[appliance.Kind][]map[string]any
	jobs    map[string]*job
	jobList []string
	seq     int
	calls   []Call

	handlers map[string]Handler
	filters  map[string]func(obj map[string]any, value string) bool
	errs     map[string]error

	// JobStates is the state sequence given to jobs started by mutating calls.
	// Each poll advances one step; the last state repeats.
	JobStates []appliance.JobState

	// LoginErr is returned by Login when set.
	LoginErr error

	// StartErr is returned by StartSession when set.
	StartErr error

	// PingFailures is the number of Ping calls that fail before one succeeds.
	PingFailures int

	// TimeZone is reported by service/time.
	TimeZone string

	// OnJobPoll is invoked after every Job call with the poll count for that job.
	OnJobPoll func(ref string, polls int)

	closed   int
	username string
}

// New returns an empty appliance whose jobs complete on the first poll.
func New() *Appliance {
	return &Appliance{
		objects:   make(map[appliance.Kind][]map[string]any),
		jobs:      make(map[string]*job),
		handlers:  make(map[string]Handler),
		filters:   make(map[string]func(obj map[string]any, value string) bool),
		errs:      make(map[string]error),
		JobStates: []appliance.JobState{appliance.JobCompleted},
		TimeZone:  "UTC",
	}
}

// Add stores obj in collection kind and returns its reference. A reference
// is generated from prefix when obj has none.
func (a *Appliance) Add(kind appliance.Kind, prefix string, obj any) string {
	raw, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Sprintf("fake: cannot encode object: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("fake: object is not a JSON object: %v", err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ref, _ := m["reference"].(string)
	if ref == "" {
		ref = a.nextRef(prefix)
		m["reference"] = ref
	}
	a.objects[kind] = append(a.objects[kind], m)
	return ref
}

// AddJob registers a job with a scripted state sequence against target.
func (a *Appliance) AddJob(ref, target string, states ...appliance.JobState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addJobLocked(ref, target, states)
}

// Handle overrides the behaviour of a mutating call. op is one of
// "create", "update", "delete" or an action name such as "refresh".
func (a *Appliance) Handle(kind appliance.Kind, op string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[string(kind)+"#"+op] = h
}

// Filter registers a custom matcher for a List query key.
func (a *Appliance) Filter(key string, match func(obj map[string]any, value string) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters[key] = match
}

// FailOn makes every call of method ("get", "list", "create", ...) on kind fail with err.
func (a *Appliance) FailOn(kind appliance.Kind, method string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[string(kind)+"#"+method] = err
}

// Calls returns a copy of the call log.
func (a *Appliance) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallsTo returns recorded calls matching method and kind.
func (a *Appliance) CallsTo(method string, kind appliance.Kind) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Method == method && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Closed returns how many times Close was called.
func (a *Appliance) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Username returns the name used for the last successful login.
func (a *Appliance) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username
}

// JobState returns the state a job would report without advancing it.
func (a *Appliance) JobState(ref string) (appliance.JobState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[ref]
	if !ok {
		return "", false
	}
	return j.current(), true
}

// StartSession implements appliance.Client.
func (a *Appliance) StartSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.record("session", "", "", "", nil)
	return a.StartErr
}

// Login implements appliance.Client.
func (a *Appliance) Login(ctx context.Context, username string, cred appliance.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.record("login", "", "", "", nil)
	if a.LoginErr != nil {
		return a.LoginErr
	}
	if cred.Kind() != appliance.CredentialPassword {
		return &appliance.RequestError{ID: "exception.webservices.login.failed", Details: "password required", StatusCode: 401}
	}
	a.mu.Lock()
	a.username = username
	a.mu.Unlock()
	return nil
}

// Ping implements appliance.Client.
func (a *Appliance) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.record("ping", appliance.KindSystem, "", "", nil)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.PingFailures > 0 {
		a.PingFailures--
		return &appliance.HTTPError{Method: "GET", URL: "fake://system", StatusCode: 503}
	}
	return nil
}

// Get implements appliance.Client.
func (a *Appliance) Get(ctx context.Context, kind appliance.Kind, ref string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.record("get", kind, ref, "", nil)
	if err := a.injected(kind, "get"); err != nil {
		return err
	}
	if kind == appliance.KindServiceTime {
		return remarshal(appliance.ServiceTime{SystemTimeZone: a.TimeZone}, out)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, obj := range a.objects[kind] {
		if obj["reference"] == ref {
			return remarshal(obj, out)
		}
	}
	return &appliance.RequestError{
		ID:         "exception.webservices.notfound",
		Details:    fmt.Sprintf("%s %s not found", kind, ref),
		StatusCode: 404,
	}
}

// List implements appliance.Client.
func (a *Appliance) List(ctx context.Context, kind appliance.Kind, query appliance.Query, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.record("list", kind, "", "", nil)
	if err := a.injected(kind, "list"); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var src []map[string]any
	if kind == appliance.KindJob {
		for _, ref := range a.jobList {
			j := a.jobs[ref]
			src = append(src, map[string]any{
				"reference": j.ref,
				"target":    j.target,
				"jobState":  string(j.current()),
			})
		}
	} else {
		src = a.objects[kind]
	}

	matched := make([]map[string]any, 0, len(src))
	for _, obj := range src {
		if a.matches(obj, query) {
			matched = append(matched, obj)
		}
	}
	return remarshal(matched, out)
}

// Create implements appliance.Client.
func (a *Appliance) Create(ctx context.Context, kind appliance.Kind, body any) (appliance.Result, error) {
	raw, err := a.begin(ctx, "create", kind, "", "", body)
	if err != nil {
		return appliance.Result{}, err
	}
	if h := a.handler(kind, "create"); h != nil {
		return h("", raw)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return appliance.Result{}, fmt.Errorf("fake: create body: %w", err)
	}
	if nested, ok := obj["container"].(map[string]any); ok && kind == appliance.KindDatabase {
		obj = nested
	}
	delete(obj, "reference")
	ref := a.Add(kind, prefixFor(kind, obj), obj)

	a.mu.Lock()
	defer a.mu.Unlock()
	return appliance.Result{Reference: appliance.ParseRef(ref), Job: a.startJobLocked(ref)}, nil
}

// Update implements appliance.Client.
func (a *Appliance) Update(ctx context.Context, kind appliance.Kind, ref string, body any) (appliance.Result, error) {
	raw, err := a.begin(ctx, "update", kind, ref, "", body)
	if err != nil {
		return appliance.Result{}, err
	}
	if h := a.handler(kind, "update"); h != nil {
		return h(ref, raw)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return appliance.Result{Reference: appliance.ParseRef(ref), Job: a.startJobLocked(ref)}, nil
}

// Delete implements appliance.Client.
func (a *Appliance) Delete(ctx context.Context, kind appliance.Kind, ref string, body any) (appliance.Result, error) {
	raw, err := a.begin(ctx, "delete", kind, ref, "", body)
	if err != nil {
		return appliance.Result{}, err
	}
	if h := a.handler(kind, "delete"); h != nil {
		return h(ref, raw)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	objs := a.objects[kind]
	for i, obj := range objs {
		if obj["reference"] == ref {
			a.objects[kind] = append(objs[:i:i], objs[i+1:]...)
			return appliance.Result{Reference: appliance.ParseRef(ref), Job: a.startJobLocked(ref)}, nil
		}
	}
	return appliance.Result{}, &appliance.RequestError{
		ID:         "exception.webservices.notfound",
		Details:    fmt.Sprintf("%s %s not found", kind, ref),
		StatusCode: 404,
	}
}

// Action implements appliance.Client.
func (a *Appliance) Action(ctx context.Context, kind appliance.Kind, ref, action string, body any) (appliance.Result, error) {
	raw, err := a.begin(ctx, action, kind, ref, action, body)
	if err != nil {
		return appliance.Result{}, err
	}
	if h := a.handler(kind, action); h != nil {
		return h(ref, raw)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return appliance.Result{Reference: appliance.ParseRef(ref), Job: a.startJobLocked(ref)}, nil
}

// Job implements appliance.Client.
func (a *Appliance) Job(ctx context.Context, ref string) (*appliance.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.record("job", appliance.KindJob, ref, "", nil)
	if err := a.injected(appliance.KindJob, "get"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	j, ok := a.jobs[ref]
	if !ok {
		a.mu.Unlock()
		return nil, &appliance.RequestError{ID: "exception.webservices.notfound", Details: "no such job " + ref, StatusCode: 404}
	}
	state := j.current()
	j.polls++
	polls := j.polls
	hook := a.OnJobPoll
	out := &appliance.Job{Reference: j.ref, Target: j.target, JobState: state}
	if state == appliance.JobFailed {
		out.Events = []appliance.JobEvent{{EventType: "ERROR", MessageDetails: "job failed on appliance"}}
	}
	a.mu.Unlock()

	if hook != nil {
		hook(ref, polls)
	}
	return out, nil
}

// Close implements appliance.Client.
func (a *Appliance) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *Appliance) begin(ctx context.Context, method string, kind appliance.Kind, ref, action string, body any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("fake: cannot encode body: %w", err)
		}
		raw = b
	}
	a.record(method, kind, ref, action, raw)
	if err := a.injected(kind, method); err != nil {
		return nil, err
	}
	return raw, nil
}

func (a *Appliance) record(method string, kind appliance.Kind, ref, action string, body json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: method, Kind: kind, Ref: ref, Action: action, Body: body})
}

func (a *Appliance) injected(kind appliance.Kind, method string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errs[string(kind)+"#"+method]
}

func (a *Appliance) handler(kind appliance.Kind, op string) Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers[string(kind)+"#"+op]
}

func (a *Appliance) matches(obj map[string]any, query appliance.Query) bool {
	for key, value := range query {
		if match, ok := a.filters[key]; ok {
			if !match(obj, value) {
				return false
			}
			continue
		}
		field, ok := obj[key]
		if !ok {
			continue
		}
		if fmt.Sprint(field) != value {
			return false
		}
	}
	return true
}

func (a *Appliance) nextRef(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s-%d", prefix, a.seq)
}

func (a *Appliance) startJobLocked(target string) string {
	ref := a.nextRef("JOB")
	a.addJobLocked(ref, target, a.JobStates)
	return ref
}

func (a *Appliance) addJobLocked(ref, target string, states []appliance.JobState) {
	if len(states) == 0 {
		states = []appliance.JobState{appliance.JobCompleted}
	}
	a.jobs[ref] = &job{ref: ref, target: target, states: append([]appliance.JobState(nil), states...)}
	a.jobList = append(a.jobList, ref)
}

func prefixFor(kind appliance.Kind, obj map[string]any) string {
	if kind == appliance.KindDatabase {
		typ, _ := obj["type"].(string)
		switch {
		case strings.HasPrefix(typ, "Oracle"):
			return "ORACLE_DB_CONTAINER"
		case strings.HasPrefix(typ, "MSSql"):
			return "MSSQL_DB_CONTAINER"
		case strings.HasPrefix(typ, "ASE"):
			return "ASE_DB_CONTAINER"
		case strings.HasPrefix(typ, "AppData"):
			return "APPDATA_CONTAINER"
		}
	}
	return strings.ToUpper(strings.NewReplacer("/", "_").Replace(string(kind)))
}

func remarshal(in, out any) error {
	if out == nil || reflect.ValueOf(out).Kind() != reflect.Ptr {
		return fmt.Errorf("fake: output must be a non-nil pointer")
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

var _ appliance.Client = (*Appliance)(nil)
