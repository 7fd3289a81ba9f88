package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/appliance"
	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/policy"
	"github.com/ddpfleet/ddpfleet/pkg/stores"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

// LogFileName is the file created under --logdir.
const LogFileName = "ddpctl.log"

const shutdownTimeout = 10 * time.Second

// destructiveCommands replace or remove data on the appliance. Guard
// policies see this as input.destructive.
var destructiveCommands = map[string]bool{
	"vdb refresh":          true,
	"vdb rewind":           true,
	"vdb delete":           true,
	"container refresh":    true,
	"container reset":      true,
	"container restore":    true,
	"container delete":     true,
	"template delete":      true,
	"branch delete":        true,
	"bookmark delete":      true,
	"user delete":          true,
	"authorization delete": true,
	"replication delete":   true,
	"environment delete":   true,
}

// fleetCommand is one workflow run through the harness.
type fleetCommand struct {
	// name labels the run in logs, traces, metrics and history.
	name string

	// prepare parses and prompts for arguments once before the fan-out;
	// may be nil.
	prepare func(cmd *cobra.Command) error

	workflow engine.Workflow

	// report prints what the workflow collected. It runs after the fan-out
	// whether or not engines failed; may be nil.
	report func(w io.Writer, asJSON bool) error
}

// runFleet gives every fleet command the same outer behaviour: set up
// telemetry, load the inventory, fan the workflow out, map the aggregate to
// an exit code and always log how long the command took.
func (a *app) runFleet(cmd *cobra.Command, fc fleetCommand) error {
	start := time.Now()

	opts, err := a.load()
	if err != nil {
		log.Error().Err(err).Msg("invalid options")
		log.Info().Msgf("took %.2f minutes", time.Since(start).Minutes())
		return &exitError{code: engine.ExitCodeFor(err), err: err}
	}

	tel, err := newTelemetry(opts, a.version)
	if err != nil {
		cfgErr := engine.NewConfigError("cannot set up telemetry", err)
		log.Error().Err(cfgErr).Msg("startup failed")
		log.Info().Msgf("took %.2f minutes", time.Since(start).Minutes())
		return &exitError{code: engine.ExitConfig, err: cfgErr}
	}

	runID := uuid.NewString()
	logger := tel.Logger.NewComponentLogger("harness").WithFields(map[string]interface{}{
		"run_id":  runID,
		"command": fc.name,
	})
	ctx, span := tel.Tracer.StartCommandSpan(cmd.Context(), fc.name, runID)
	ctx = tel.WithContext(ctx)

	hist := openHistory(ctx, opts, runID, fc.name, logger)
	var agg *engine.Aggregate
	var runErr error
	if fc.prepare != nil {
		runErr = fc.prepare(cmd)
	}
	if runErr == nil {
		agg, runErr = a.dispatch(ctx, opts, hist, fc)
	}

	code := engine.ExitOK
	switch {
	case runErr != nil:
		code = engine.ExitCodeFor(runErr)
		logger.WithError(runErr).Error("command could not run")
	case agg != nil:
		code = agg.ExitCode()
		runErr = agg.Err()
		for _, o := range agg.Failed() {
			logger.WithEngine(o.Hostname).WithError(o.Err).Errorf("engine failed (%s)", o.Kind)
		}
		if agg.Interrupted {
			logger.Warn("interrupted, started engines were drained")
		}
	}

	if fc.report != nil {
		if err := fc.report(cmd.OutOrStdout(), opts.JSON); err != nil {
			logger.WithError(err).Error("cannot print results")
			code = engine.WorstExitCode(code, engine.ExitInternal)
		}
	}

	elapsed := time.Since(start)
	logger.WithField("exit_code", code).Infof("took %.2f minutes", elapsed.Minutes())

	hist.finish(agg, runErr, code)
	tel.Metrics.RecordRun(fc.name, code, elapsed)
	if code == engine.ExitOK {
		telemetry.RecordSuccess(span)
	} else {
		telemetry.RecordError(span, runErr)
	}
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}

	if code != engine.ExitOK {
		return &exitError{code: code, err: runErr}
	}
	return nil
}

// dispatch loads the fleet and runs the workflow with the telemetry carried
// by ctx. An error is returned only when nothing could be dispatched.
func (a *app) dispatch(ctx context.Context, opts *options, hist *history, fc fleetCommand) (*engine.Aggregate, error) {
	tel := telemetry.FromTelemetryContext(ctx)
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	sel, err := opts.selector()
	if err != nil {
		return nil, err
	}
	cipher, err := inventory.ResolveCipher(opts.KeyFile)
	if err != nil {
		return nil, err
	}
	fleet, err := inventory.Load(opts.Config, inventory.WithCipher(cipher), inventory.WithLogger(tel.Logger))
	if err != nil {
		return nil, err
	}

	jobObservers := []engine.JobObserver{engine.JobMetrics(tel.Metrics)}
	var outcomeObservers []engine.OutcomeObserver
	if hist != nil {
		jobObservers = append(jobObservers, hist.recorder)
		outcomeObservers = append(outcomeObservers, hist.recorder)
	}

	guard, err := loadGuard(ctx, opts)
	if err != nil {
		return nil, err
	}
	wf := guard.Guard(fc.name, destructiveCommands[fc.name], string(sel.Mode), currentUser(), fc.workflow)

	tracker := engine.NewTracker(engine.TrackerConfig{
		PollInterval: time.Duration(opts.Poll) * time.Second,
	}, jobObservers...)
	sessions := engine.NewSessionManager(engine.SessionConfig{
		Dial:    a.dialer(opts, tel),
		Cipher:  cipher,
		Tracker: tracker,
		Logger:  tel.Logger,
		Metrics: tel.Metrics,
	})
	executor := engine.NewExecutor(engine.ExecutorConfig{
		Sessions:  sessions,
		Parallel:  opts.Parallel,
		Observers: outcomeObservers,
		Logger:    tel.Logger,
		Tracer:    tel.Tracer,
		Metrics:   tel.Metrics,
	})
	return executor.Run(ctx, fleet, sel, wf, opts.SingleThread)
}

// loadGuard compiles the policies named by --policy; nil when none is given.
func loadGuard(ctx context.Context, opts *options) (*policy.Engine, error) {
	if len(opts.Policy) == 0 {
		return nil, nil
	}
	logger := telemetry.FromContext(ctx)
	policies, err := policy.NewLoader(logger).Load(opts.Policy)
	if err != nil {
		return nil, engine.NewConfigError("cannot load guard policies", err).WithCode(engine.ErrCodePolicy)
	}
	guard, err := policy.NewEngine(ctx, logger, policies)
	if err != nil {
		return nil, engine.NewConfigError("cannot compile guard policies", err).WithCode(engine.ErrCodePolicy)
	}
	return guard, nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// dialer builds appliance clients from inventory records.
func (a *app) dialer(opts *options, tel *telemetry.Telemetry) engine.Dialer {
	if a.dial != nil {
		return a.dial
	}
	return func(rec inventory.EngineRecord) (appliance.Client, error) {
		return appliance.NewHTTPClient(appliance.Config{
			Address:            rec.IPAddress,
			UseHTTPS:           rec.UseHTTPS,
			InsecureSkipVerify: opts.InsecureSkipVerify,
			RequestTimeout:     opts.RequestTimeout,
			RateLimit:          opts.RateLimit,
			Engine:             rec.Hostname,
			Observer:           tel.Metrics,
		})
	}
}

// newTelemetry maps the global options to a telemetry configuration.
func newTelemetry(opts *options, version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = opts.LogLevel
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		cfg.Logging.File = filepath.Join(opts.LogDir, LogFileName)
	}
	switch opts.TraceExporter {
	case "", "none":
	default:
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = opts.TraceExporter
		cfg.Tracing.Endpoint = opts.OTLPEndpoint
	}
	cfg.Metrics.TextfilePath = opts.MetricsFile
	return telemetry.NewTelemetry(cfg)
}

// history records one run in the ledger. A nil *history records nothing.
type history struct {
	store    *stores.SQLiteStore
	recorder *stores.Recorder
	runID    string
	logger   *telemetry.Logger
}

// openHistory opens the ledger named by --history. The command still runs
// when the ledger cannot be opened.
func openHistory(ctx context.Context, opts *options, runID, command string, logger *telemetry.Logger) *history {
	if opts.History == "" {
		return nil
	}
	store, err := openStore(ctx, opts.History)
	if err != nil {
		logger.WithError(err).Warn("run history disabled")
		return nil
	}

	sel, _ := opts.selector()
	err = store.CreateRun(ctx, &stores.Run{
		ID:        runID,
		Command:   command,
		Selector:  sel.String(),
		Status:    stores.RunStatusRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		_ = store.Close()
		logger.WithError(err).Warn("run history disabled")
		return nil
	}
	return &history{
		store:    store,
		recorder: stores.NewRecorder(store, runID, logger),
		runID:    runID,
		logger:   logger,
	}
}

// openStore opens and migrates the ledger at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (h *history) finish(agg *engine.Aggregate, runErr error, code int) {
	if h == nil {
		return
	}
	defer h.store.Close()

	status := stores.RunStatusSucceeded
	switch {
	case agg != nil && agg.Interrupted:
		status = stores.RunStatusInterrupted
	case runErr != nil || code != engine.ExitOK:
		status = stores.RunStatusFailed
	}
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.store.FinishRun(ctx, h.runID, status, code, msg); err != nil {
		h.logger.WithError(err).Warn("cannot record run result")
	}
}
