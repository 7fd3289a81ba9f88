package telemetry

import (
	"context"
	"errors"
)

// Telemetry bundles the logger, tracer and metrics of one invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewNopTelemetry returns telemetry that records nothing.
func NewNopTelemetry() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	metrics, _ := NewMetrics(cfg.Metrics)
	return &Telemetry{
		Logger:  NewNopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown writes the metrics textfile, flushes spans and closes the log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Metrics.WriteTextfile(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
