package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ddpfleet/ddpfleet/cmd/ddpctl/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// An interrupt cancels the run; started engine tasks wind down and the
	// command still reports its elapsed time.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()
	os.Exit(code)
}

// setupLogging configures the global zerolog logger used before a command
// has set up its own log file.
func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("DDP_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}).Level(level)
}
