package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// SelectMode chooses which engines of the fleet a command targets.
type SelectMode string

const (
	// SelectAll targets every engine in fleet order.
	SelectAll SelectMode = "all"

	// SelectDefault targets the engine marked default.
	SelectDefault SelectMode = "default"

	// SelectHostname targets one engine by hostname.
	SelectHostname SelectMode = "hostname"
)

// Selector is an engine selection.
type Selector struct {
	Mode     SelectMode
	Hostname string
}

// AllEngines selects the whole fleet.
func AllEngines() Selector {
	return Selector{Mode: SelectAll}
}

// DefaultEngine selects the default engine.
func DefaultEngine() Selector {
	return Selector{Mode: SelectDefault}
}

// EngineNamed selects the engine with the given hostname.
func EngineNamed(hostname string) Selector {
	return Selector{Mode: SelectHostname, Hostname: hostname}
}

// String implements fmt.Stringer.
func (sel Selector) String() string {
	if sel.Mode == SelectHostname {
		return "engine " + sel.Hostname
	}
	return string(sel.Mode) + " engines"
}

// Select returns the targeted records in fleet order.
func (sel Selector) Select(fleet *inventory.Fleet) ([]inventory.EngineRecord, error) {
	switch sel.Mode {
	case SelectAll:
		engines := fleet.Engines()
		if len(engines) == 0 {
			return nil, NewConfigError("inventory defines no engines", nil).WithCode(ErrCodeValidation)
		}
		return engines, nil
	case SelectDefault:
		rec, ok := fleet.Default()
		if !ok {
			return nil, NewConfigError("no engine is marked default; use --engine or --all", nil).WithCode(ErrCodeNoDefault)
		}
		return []inventory.EngineRecord{rec}, nil
	case SelectHostname:
		rec, ok := fleet.Lookup(sel.Hostname)
		if !ok {
			return nil, NewNotFoundError(fmt.Sprintf("engine %q is not in the inventory", sel.Hostname), nil).
				WithResource(sel.Hostname)
		}
		return []inventory.EngineRecord{rec}, nil
	default:
		return nil, NewConfigError(fmt.Sprintf("invalid engine selection %q", sel.Mode), nil).WithCode(ErrCodeValidation)
	}
}

// Workflow is the per-engine body of a command. Workflows issue operations
// on the session and return; the executor drains submitted jobs afterwards.
type Workflow func(ctx context.Context, s *Session) error

// Outcome is the result of one engine task.
type Outcome struct {
	Hostname string        `json:"hostname"`
	Status   OutcomeStatus `json:"status"`
	Kind     Kind          `json:"kind,omitempty"`
	Err      error         `json:"-"`
	Jobs     []JobOutcome  `json:"jobs,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OutcomeObserver is notified once per finished engine task. Observers are
// called from task goroutines and must be safe for concurrent use.
type OutcomeObserver interface {
	EngineFinished(o Outcome)
}

// Aggregate collects per-engine outcomes in selection order.
type Aggregate struct {
	Outcomes    []Outcome `json:"outcomes"`
	Interrupted bool      `json:"interrupted"`
}

// Lookup returns the outcome recorded for hostname.
func (a *Aggregate) Lookup(hostname string) (Outcome, bool) {
	for _, o := range a.Outcomes {
		if o.Hostname == hostname {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failed returns the failed outcomes.
func (a *Aggregate) Failed() []Outcome {
	var out []Outcome
	for _, o := range a.Outcomes {
		if o.Status.IsFailure() {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the errors of failed outcomes.
func (a *Aggregate) Err() error {
	var errs []error
	for _, o := range a.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// ExitCode maps the aggregate to a process exit code. An interrupted run
// always exits ExitOK.
func (a *Aggregate) ExitCode() int {
	if a.Interrupted {
		return ExitOK
	}
	codes := make([]int, 0, len(a.Outcomes))
	for _, o := range a.Outcomes {
		codes = append(codes, ExitCodeFor(o.Err))
	}
	return WorstExitCode(codes...)
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Sessions opens a session per task. Required.
	Sessions *SessionManager

	// Parallel caps concurrent tasks. Zero means one task per engine.
	Parallel int

	// Observers receive each finished outcome.
	Observers []OutcomeObserver

	Logger  *telemetry.Logger
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics
}

// Executor runs a workflow against a selection of engines. It is the only
// place that starts goroutines for engine work.
type Executor struct {
	sessions  *SessionManager
	parallel  int
	observers []OutcomeObserver
	logger    *telemetry.Logger
	tracer    *telemetry.Tracer
	metrics   *telemetry.Metrics
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		sessions:  cfg.Sessions,
		parallel:  cfg.Parallel,
		observers: cfg.Observers,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		metrics:   cfg.Metrics,
	}
	if e.logger == nil {
		e.logger = telemetry.NewNopLogger()
	}
	e.logger = e.logger.NewComponentLogger("executor")
	if e.tracer == nil {
		e.tracer = telemetry.NewNopTelemetry().Tracer
	}
	return e
}

// Run selects engines from fleet and runs wf once per engine. With
// singleThread the tasks run one after another on the calling goroutine in
// synchronous job mode; otherwise they run concurrently in cooperative job
// mode. Run returns an error only when the selection fails; task failures
// are reported in the aggregate. When ctx is canceled no further tasks are
// dispatched and started tasks stop at their next REST call or poll sleep.
func (e *Executor) Run(ctx context.Context, fleet *inventory.Fleet, sel Selector, wf Workflow, singleThread bool) (*Aggregate, error) {
	if e.sessions == nil {
		return nil, NewInternalError("executor has no session manager", nil)
	}
	targets, err := sel.Select(fleet)
	if err != nil {
		return nil, err
	}

	mode := ModeFor(singleThread)
	outcomes := make([]Outcome, len(targets))
	e.logger.Infof("running against %s (%d target(s), %s job mode)", sel, len(targets), mode)

	if singleThread {
		for i, rec := range targets {
			if ctx.Err() != nil {
				outcomes[i] = skipped(rec, ctx.Err())
				continue
			}
			outcomes[i] = e.runTask(ctx, rec, wf, mode)
		}
	} else {
		var g errgroup.Group
		if e.parallel > 0 {
			g.SetLimit(e.parallel)
		}
		for i, rec := range targets {
			if ctx.Err() != nil {
				outcomes[i] = skipped(rec, ctx.Err())
				continue
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					outcomes[i] = skipped(rec, ctx.Err())
					return nil
				}
				outcomes[i] = e.runTask(ctx, rec, wf, mode)
				return nil
			})
		}
		_ = g.Wait()
	}

	agg := &Aggregate{Outcomes: outcomes, Interrupted: ctx.Err() != nil}
	for _, o := range outcomes {
		if o.Status == OutcomeInterrupted {
			agg.Interrupted = true
		}
	}
	return agg, nil
}

// runTask opens a session, runs the workflow in a job-mode scope, drains the
// session and closes it. The session is closed on every path.
func (e *Executor) runTask(ctx context.Context, rec inventory.EngineRecord, wf Workflow, mode JobMode) (out Outcome) {
	start := time.Now()
	out.Hostname = rec.Hostname
	logger := e.logger.WithEngine(rec.Hostname)
	e.metrics.EngineStarted()

	ctx, span := e.tracer.StartEngineSpan(ctx, rec.Hostname)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("workflow panicked: %v\n%s", r, debug.Stack())
			out.Err = NewInternalError(fmt.Sprintf("workflow panicked: %v", r), nil).
				WithEngine(rec.Hostname).
				WithCode(ErrCodePanic)
		}
		out.Duration = time.Since(start)
		e.settle(&out, logger)
		if out.Err != nil {
			telemetry.RecordError(span, out.Err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}()

	sess, err := e.sessions.Open(ctx, rec)
	if err != nil {
		out.Err = err
		return out
	}
	sess.SetLogger(logger)
	defer func() {
		out.Jobs = sess.Outcomes()
		if cerr := sess.Close(); cerr != nil {
			logger.Warnf("closing session failed: %v", cerr)
		}
	}()

	werr := sess.WithJobMode(mode, func() error {
		return wf(ctx, sess)
	})
	derr := sess.DrainJobs(ctx)
	out.Err = withEngine(rec.Hostname, errors.Join(werr, derr))
	return out
}

// settle fills in the outcome status and reports it.
func (e *Executor) settle(out *Outcome, logger *telemetry.Logger) {
	out.Kind = KindOf(out.Err)
	switch {
	case out.Err == nil:
		out.Status = OutcomeSucceeded
		logger.Infof("completed in %s", out.Duration.Round(time.Second))
	case out.Kind == KindInterrupted:
		out.Status = OutcomeInterrupted
		logger.Warnf("interrupted: %v", out.Err)
	default:
		out.Status = OutcomeFailed
		logger.WithError(out.Err).Errorf("failed (%s)", out.Kind)
		e.metrics.RecordError(string(out.Kind))
	}
	e.metrics.RecordEngineTask(string(out.Status), out.Duration)
	for _, o := range e.observers {
		o.EngineFinished(*out)
	}
}

func skipped(rec inventory.EngineRecord, cause error) Outcome {
	err := NewInterruptedError("not started", cause).WithEngine(rec.Hostname)
	return Outcome{Hostname: rec.Hostname, Status: OutcomeSkipped, Kind: KindInterrupted, Err: err}
}

// withEngine attaches hostname to err, classifying it when needed.
func withEngine(hostname string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Engine == "" {
			e.Engine = hostname
		}
		return err
	}
	return newError(KindOf(err), "workflow failed", err).WithEngine(hostname)
}
