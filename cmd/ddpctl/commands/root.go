package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
)

// EnvPrefix prefixes the environment variables that back every global flag,
// e.g. DDP_CONFIG or DDP_SINGLE_THREAD.
const EnvPrefix = "DDP"

// options holds the global flags after flag, environment and default
// resolution.
type options struct {
	Engine       string `mapstructure:"engine"`
	All          bool   `mapstructure:"all"`
	Config       string `mapstructure:"config"`
	LogDir       string `mapstructure:"logdir"`
	SingleThread bool   `mapstructure:"single_thread"`
	Poll         int    `mapstructure:"poll"`
	Parallel     int    `mapstructure:"parallel"`
	LogLevel     string `mapstructure:"log-level"`
	KeyFile      string `mapstructure:"key-file"`
	JSON         bool   `mapstructure:"json"`

	History       string `mapstructure:"history"`
	MetricsFile   string `mapstructure:"metrics-file"`
	TraceExporter string `mapstructure:"trace-exporter"`
	OTLPEndpoint  string `mapstructure:"otlp-endpoint"`

	Policy []string `mapstructure:"policy"`

	RequestTimeout     time.Duration `mapstructure:"request-timeout"`
	RateLimit          float64       `mapstructure:"rate-limit"`
	InsecureSkipVerify bool          `mapstructure:"insecure-skip-verify"`
}

// selector maps --engine and --all to an engine selection.
func (o *options) selector() (engine.Selector, error) {
	switch {
	case o.All && o.Engine != "":
		return engine.Selector{}, engine.NewConfigError("--engine and --all are mutually exclusive", nil).
			WithCode(engine.ErrCodeValidation)
	case o.All:
		return engine.AllEngines(), nil
	case o.Engine != "":
		return engine.EngineNamed(o.Engine), nil
	default:
		return engine.DefaultEngine(), nil
	}
}

// app carries what every subcommand needs.
type app struct {
	v       *viper.Viper
	version string

	// dial overrides the appliance client factory in tests.
	dial engine.Dialer
}

// load resolves the global options.
func (a *app) load() (*options, error) {
	var o options
	if err := a.v.Unmarshal(&o); err != nil {
		return nil, engine.NewConfigError("cannot read options", err).WithCode(engine.ErrCodeValidation)
	}
	if o.Poll <= 0 {
		return nil, engine.NewConfigError(fmt.Sprintf("--poll must be positive, got %d", o.Poll), nil).
			WithCode(engine.ErrCodeValidation)
	}
	if o.Parallel < 0 {
		return nil, engine.NewConfigError(fmt.Sprintf("--parallel must not be negative, got %d", o.Parallel), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return &o, nil
}

// exitError carries a process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) int {
	rootCmd := newRootCommand(&app{v: viper.New(), version: version}, commit, buildDate)
	return exitCode(rootCmd.ExecuteContext(ctx))
}

// exitCode maps the error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return engine.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	log.Error().Err(err).Msg("command failed")
	var classified *engine.Error
	if !errors.As(err, &classified) && engine.KindOf(err) == engine.KindInternal {
		// cobra reports bad flags and arguments as plain errors
		return engine.ExitConfig
	}
	return engine.ExitCodeFor(err)
}

func newRootCommand(a *app, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ddpctl",
		Short: "Fleet toolkit for data virtualization appliances",
		Long: `ddpctl runs administrative operations against one or more appliances listed
in an engine inventory.

Each command is dispatched to the selected engines (the default engine,
one engine with --engine, or every engine with --all). Engines are worked
concurrently unless --single_thread is set. Appliance jobs started by a
command are tracked until they finish.

Exit codes:
  0  success, or interrupted by the user
  1  internal, network or request failure
  2  configuration, credential or lookup failure
  3  an appliance job failed

Network and request failures exit 1, where the classic toolkit exits 0,
so scripts do not mistake an unreachable engine for success.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", a.version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("engine", "", "hostname of the engine to target (default: the engine marked default)")
	flags.Bool("all", false, "target every engine in the inventory")
	flags.StringP("config", "c", "./dxtools.conf", "engine inventory path (JSON or YAML)")
	flags.String("logdir", "", "directory for ddpctl.log (default: no log file)")
	flags.Bool("single_thread", false, "work engines one at a time and wait for each job")
	flags.Int("poll", 10, "job poll interval in seconds")
	flags.Int("parallel", 0, "maximum engines worked at once (0: no limit)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("key-file", "", "file holding the inventory encryption passphrase")
	flags.Bool("json", false, "print listings as JSON")
	flags.String("history", "", "SQLite run history database (default: no history)")
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	flags.String("trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	flags.String("otlp-endpoint", "", "OTLP gRPC collector address")
	flags.StringSlice("policy", nil, "guard policy checked before each engine: a .rego or .json file, a directory, or builtin:NAME (repeatable)")
	flags.Duration("request-timeout", 60*time.Second, "timeout of each appliance REST call")
	flags.Float64("rate-limit", 0, "maximum REST calls per second per engine (0: no limit)")
	flags.Bool("insecure-skip-verify", false, "accept self-signed appliance certificates")

	if err := a.v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(newVDBCommand(a))
	rootCmd.AddCommand(newDSourceCommand(a))
	rootCmd.AddCommand(newTemplateCommand(a))
	rootCmd.AddCommand(newContainerCommand(a))
	rootCmd.AddCommand(newBranchCommand(a))
	rootCmd.AddCommand(newBookmarkCommand(a))
	rootCmd.AddCommand(newUserCommand(a))
	rootCmd.AddCommand(newAuthorizationCommand(a))
	rootCmd.AddCommand(newReplicationCommand(a))
	rootCmd.AddCommand(newEnvironmentCommand(a))
	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))
	rootCmd.AddCommand(newInventoryCommand(a))

	rootCmd.SetErr(os.Stderr)
	return rootCmd
}
