package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for a ddpctl invocation.
type Config struct {
	// ServiceName is the name reported in traces.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Console writes human-readable lines to stderr.
	Console bool

	// Color enables ANSI colours on the console writer.
	Color bool

	// File is the path of the log file; empty disables file logging.
	File string

	// EnableCaller adds file:line caller information.
	EnableCaller bool

	// TimeFormat is the timestamp layout of console lines.
	TimeFormat string
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	Enabled bool

	// Exporter is one of otlp, stdout or none.
	Exporter string

	// Endpoint is the OTLP collector address.
	Endpoint string

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// Namespace is the metrics namespace prefix.
	Namespace string

	// TextfilePath is where the registry is written when the command ends,
	// in node_exporter textfile format. Empty disables the export.
	TextfilePath string

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "ddpctl",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			TimeFormat: "2006-01-02 15:04:05",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "ddpctl",
			DefaultHistogramBuckets: []float64{
				0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 1800, 3600,
			},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.TextfilePath != "" && !c.Metrics.Enabled {
		return fmt.Errorf("metrics textfile requires metrics to be enabled")
	}

	return nil
}
