// Package telemetry provides the observability plumbing of ddpctl.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) behind one Telemetry value created per invocation.
//
// # Logging
//
// Every line is timestamped and level-prefixed. The console writer goes to
// stderr; the log file under --logdir receives the same lines without colour.
// Engine-scoped loggers carry the appliance hostname:
//
//	logger := tel.Logger.NewComponentLogger("executor").WithEngine("eng1")
//	logger.Infof("refresh submitted as %s", job)
//
// # Tracing
//
// A root span is opened per command and a child span per engine task. REST
// calls made by the appliance client become grandchildren through the
// global tracer provider installed by NewTracer.
//
//	cfg.Tracing.Enabled = true
//	cfg.Tracing.Exporter = "otlp"
//	cfg.Tracing.Endpoint = "collector:4317"
//
// # Metrics
//
// Counters and histograms cover command runs, engine tasks, sessions, jobs
// and REST calls. A CLI process exits quickly, so instead of serving
// /metrics the registry is written once to a node_exporter textfile:
//
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/ddpctl.prom"
//	defer tel.Shutdown(ctx)
package telemetry
