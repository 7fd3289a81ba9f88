package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with ddpctl-specific fields.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
	closer io.Closer
}

// loggerContextKey is the context key for logger instances.
type loggerContextKey struct{}

// NewLogger creates a logger writing to the console and/or a log file.
// Every line is timestamped and level-prefixed.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05"
	}

	var writers []io.Writer
	var closer io.Closer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: timeFormat,
			NoColor:    !cfg.Color,
		})
	}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		closer = file
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        zerolog.SyncWriter(file),
			TimeFormat: timeFormat,
			NoColor:    true,
		})
	}

	var writer io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	l := NewWriterLogger(writer, cfg.Level)
	if cfg.EnableCaller {
		l.zlog = l.zlog.With().Caller().Logger()
	}
	l.config = cfg
	l.closer = closer
	return l, nil
}

// NewWriterLogger creates a timestamped logger writing zerolog events to w.
// Without a formatting writer such as zerolog.ConsoleWriter the events are
// JSON lines.
func NewWriterLogger(w io.Writer, level string) *Logger {
	return &Logger{
		zlog:   zerolog.New(w).With().Timestamp().Logger().Level(parseLogLevel(level)),
		config: LoggingConfig{Level: level},
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.derive(l.zlog.With().Str("component", component).Logger())
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context.
// If no logger is found, it returns a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return NewNopLogger()
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return l.derive(ctx.Logger())
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zlog.With().Interface(key, value).Logger())
}

// WithEngine tags every line with the appliance hostname.
func (l *Logger) WithEngine(hostname string) *Logger {
	return l.derive(l.zlog.With().Str("engine", hostname).Logger())
}

// WithRunID adds a run_id field to the logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.derive(l.zlog.With().Str("run_id", runID).Logger())
}

// WithJob adds a job field to the logger.
func (l *Logger) WithJob(jobRef string) *Logger {
	return l.derive(l.zlog.With().Str("job", jobRef).Logger())
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zlog.With().Err(err).Logger())
}

func (l *Logger) derive(z zerolog.Logger) *Logger {
	return &Logger{zlog: z, config: l.config}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
