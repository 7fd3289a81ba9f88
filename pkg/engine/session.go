package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// Readiness defaults.
const (
	DefaultReadyRetries  = 30
	DefaultReadyInterval = 5 * time.Second
)

// Dialer creates an unauthenticated client for an engine record.
type Dialer func(rec inventory.EngineRecord) (appliance.Client, error)

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	// Dial creates the appliance client. Required.
	Dial Dialer

	// Cipher decrypts inventory credentials. Defaults to inventory.DefaultCipher.
	Cipher *inventory.Cipher

	// Tracker polls jobs for Submit and DrainJobs. Defaults to NewTracker(TrackerConfig{}).
	Tracker *Tracker

	// ReadyRetries bounds the liveness polls after login.
	ReadyRetries int

	// ReadyInterval is the pause between liveness polls. Negative disables the pause.
	ReadyInterval time.Duration

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// SessionManager opens authenticated sessions against engines.
type SessionManager struct {
	dial          Dialer
	cipher        *inventory.Cipher
	tracker       *Tracker
	readyRetries  int
	readyInterval time.Duration
	logger        *telemetry.Logger
	metrics       *telemetry.Metrics
}

// NewSessionManager creates a session manager.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	m := &SessionManager{
		dial:          cfg.Dial,
		cipher:        cfg.Cipher,
		tracker:       cfg.Tracker,
		readyRetries:  cfg.ReadyRetries,
		readyInterval: cfg.ReadyInterval,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
	if m.cipher == nil {
		m.cipher = inventory.DefaultCipher()
	}
	if m.tracker == nil {
		m.tracker = NewTracker(TrackerConfig{})
	}
	if m.readyRetries <= 0 {
		m.readyRetries = DefaultReadyRetries
	}
	if m.readyInterval < 0 {
		m.readyInterval = 0
	} else if m.readyInterval == 0 {
		m.readyInterval = DefaultReadyInterval
	}
	if m.logger == nil {
		m.logger = telemetry.NewNopLogger()
	}
	return m
}

// Tracker returns the tracker shared by sessions of this manager.
func (m *SessionManager) Tracker() *Tracker {
	return m.tracker
}

// Open authenticates against rec and waits until the appliance answers its
// liveness endpoint. The returned session starts in cooperative job mode.
func (m *SessionManager) Open(ctx context.Context, rec inventory.EngineRecord) (*Session, error) {
	logger := m.logger.NewComponentLogger("session").WithEngine(rec.Hostname)

	if m.dial == nil {
		return nil, NewInternalError("session manager has no dialer", nil).WithEngine(rec.Hostname)
	}
	username, cred, err := rec.Credentials(m.cipher)
	if err != nil {
		m.metrics.RecordSession(string(KindConfig))
		return nil, NewConfigError("cannot decrypt engine credentials", err).WithEngine(rec.Hostname)
	}
	client, err := m.dial(rec)
	if err != nil {
		m.metrics.RecordSession(string(KindConfig))
		return nil, NewConfigError("cannot create appliance client", err).WithEngine(rec.Hostname)
	}

	if authErr := m.authenticate(ctx, client, username, cred); authErr != nil {
		_ = client.Close()
		m.metrics.RecordSession(string(authErr.Kind))
		logger.WithError(authErr).Error("authentication failed")
		return nil, authErr.WithEngine(rec.Hostname)
	}
	if readyErr := m.waitReady(ctx, client, logger); readyErr != nil {
		_ = client.Close()
		m.metrics.RecordSession(string(readyErr.Kind))
		return nil, readyErr.WithEngine(rec.Hostname)
	}

	m.metrics.RecordSession("ok")
	logger.Debug("session established")
	return newSession(rec, client, m.tracker, logger), nil
}

func (m *SessionManager) authenticate(ctx context.Context, client appliance.Client, username string, cred appliance.Credential) *Error {
	if err := client.StartSession(ctx); err != nil {
		return classifyLogin("cannot start API session", err)
	}
	if err := client.Login(ctx, username, cred); err != nil {
		return classifyLogin("login rejected", err)
	}
	return nil
}

func classifyLogin(message string, err error) *Error {
	var reqErr *appliance.RequestError
	switch {
	case errors.Is(err, context.Canceled):
		return NewInterruptedError(message, err)
	case appliance.IsAuthFailure(err), errors.As(err, &reqErr):
		return NewAuthError(message, err)
	default:
		return NewNetworkError(message, err)
	}
}

func (m *SessionManager) waitReady(ctx context.Context, client appliance.Client, logger *telemetry.Logger) *Error {
	var lastErr error
	for attempt := 1; attempt <= m.readyRetries; attempt++ {
		lastErr = client.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return NewInterruptedError("readiness wait interrupted", lastErr)
		}
		if appliance.IsAuthFailure(lastErr) {
			return NewAuthError("session rejected by liveness check", lastErr)
		}
		logger.Debugf("appliance not ready (attempt %d/%d): %v", attempt, m.readyRetries, lastErr)
		if attempt == m.readyRetries {
			break
		}
		if err := sleep(ctx, m.readyInterval); err != nil {
			return NewInterruptedError("readiness wait interrupted", err)
		}
	}
	return NewNetworkError(fmt.Sprintf("appliance not ready after %d attempts", m.readyRetries), lastErr).
		WithCode(ErrCodeTimeout)
}

// Session is an authenticated connection to one engine. A session belongs
// to a single executor task and must not be shared across goroutines.
type Session struct {
	record  inventory.EngineRecord
	client  appliance.Client
	tracker *Tracker
	logger  *telemetry.Logger

	mode     JobMode
	jobs     JobSet
	outcomes []JobOutcome
	zone     string

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an already authenticated client. Most callers obtain
// sessions from SessionManager.Open.
func NewSession(rec inventory.EngineRecord, client appliance.Client, tracker *Tracker) *Session {
	if tracker == nil {
		tracker = NewTracker(TrackerConfig{})
	}
	return newSession(rec, client, tracker, telemetry.NewNopLogger().WithEngine(rec.Hostname))
}

func newSession(rec inventory.EngineRecord, client appliance.Client, tracker *Tracker, logger *telemetry.Logger) *Session {
	return &Session{
		record:  rec,
		client:  client,
		tracker: tracker,
		logger:  logger,
		mode:    JobModeCooperative,
	}
}

// Engine returns the owning engine record.
func (s *Session) Engine() inventory.EngineRecord {
	return s.record
}

// Hostname returns the owning engine's hostname.
func (s *Session) Hostname() string {
	return s.record.Hostname
}

// Client returns the underlying appliance client.
func (s *Session) Client() appliance.Client {
	return s.client
}

// Logger returns the session's engine-scoped logger.
func (s *Session) Logger() *telemetry.Logger {
	return s.logger
}

// SetLogger replaces the session logger.
func (s *Session) SetLogger(logger *telemetry.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Mode returns the current job mode.
func (s *Session) Mode() JobMode {
	return s.mode
}

// Jobs returns the outstanding job set.
func (s *Session) Jobs() *JobSet {
	return &s.jobs
}

// Outcomes returns the terminal records of every job tracked on this session.
func (s *Session) Outcomes() []JobOutcome {
	out := make([]JobOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// JobModeScope restores a session's previous job mode on Exit.
type JobModeScope struct {
	session *Session
	prev    JobMode
	once    sync.Once
}

// EnterJobMode switches the session to mode until the scope is exited.
func (s *Session) EnterJobMode(mode JobMode) *JobModeScope {
	scope := &JobModeScope{session: s, prev: s.mode}
	s.mode = mode
	return scope
}

// Exit restores the mode in effect when the scope was entered. Extra calls
// are ignored.
func (sc *JobModeScope) Exit() {
	sc.once.Do(func() {
		sc.session.mode = sc.prev
	})
}

// WithJobMode runs fn with the session in mode. The previous mode is
// restored however fn returns, including by panic.
func (s *Session) WithJobMode(mode JobMode, fn func() error) error {
	scope := s.EnterJobMode(mode)
	defer scope.Exit()
	return fn()
}

// Submit routes the job of an operation result. Results without a job are
// ignored. In synchronous mode Submit waits for the job and returns a job
// error unless it completed; in cooperative mode the handle is added to the
// job set and returned at once.
func (s *Session) Submit(ctx context.Context, res appliance.Result) (*JobHandle, error) {
	if !res.HasJob() {
		return nil, nil
	}
	h := &JobHandle{
		Reference:   res.Job,
		TargetRef:   res.Reference,
		Engine:      s.Hostname(),
		SubmittedAt: time.Now(),
	}
	s.tracker.submitted(*h)
	s.logger.WithJob(h.Reference).Infof("job %s submitted for %s", h.Reference, h.TargetRef)

	if s.mode == JobModeSynchronous {
		_, err := s.tracker.WaitFor(ctx, s, h)
		return h, err
	}
	s.jobs.Add(h)
	return h, nil
}

// Await waits for a job the session did not submit, e.g. one already running
// on the appliance, regardless of the job mode. The handle is marked foreign
// so it stays out of the session outcomes.
func (s *Session) Await(ctx context.Context, h *JobHandle) (appliance.JobState, error) {
	h.Foreign = true
	if h.SubmittedAt.IsZero() {
		h.SubmittedAt = time.Now()
	}
	return s.tracker.WaitFor(ctx, s, h)
}

// DrainJobs blocks until the job set is empty. It returns an error when
// draining was interrupted or when any drained job did not complete.
func (s *Session) DrainJobs(ctx context.Context) error {
	if s.jobs.Len() == 0 {
		return nil
	}
	outcomes, err := s.tracker.Track(ctx, s)
	if err != nil {
		return err
	}
	return failedJobs(s.Hostname(), outcomes)
}

func failedJobs(hostname string, outcomes []JobOutcome) error {
	var errs []error
	kind := KindNetwork
	for _, o := range outcomes {
		if o.Successful() {
			continue
		}
		errs = append(errs, o.Err)
		if KindOf(o.Err) == KindJob {
			kind = KindJob
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return newError(kind, fmt.Sprintf("%d of %d job(s) did not complete", len(errs), len(outcomes)), errors.Join(errs...)).
		WithEngine(hostname).
		WithCode(ErrCodeJobFailed)
}

// Zone returns the appliance's display time zone. It is read once per session.
func (s *Session) Zone(ctx context.Context) (string, error) {
	if s.zone != "" {
		return s.zone, nil
	}
	var st appliance.ServiceTime
	if err := s.client.Get(ctx, appliance.KindServiceTime, "", &st); err != nil {
		return "", Classify(err, "cannot read appliance time zone")
	}
	if st.SystemTimeZone == "" {
		return "", NewRequestError("appliance reported no time zone", nil).WithEngine(s.Hostname())
	}
	s.zone = st.SystemTimeZone
	return s.zone, nil
}

// Close releases the client. Extra calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		s.logger.Debug("session closed")
	})
	return s.closeErr
}

func (s *Session) recordOutcome(o JobOutcome) {
	s.outcomes = append(s.outcomes, o)
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
