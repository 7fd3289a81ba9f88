package ssh

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Target is a host to check before it becomes an appliance environment.
type Target struct {
	Host string
	Port int
	User string

	// Password selects password authentication. When empty the operator's
	// private key is used.
	Password string

	// ToolkitPath must be an existing directory the user can write to.
	ToolkitPath string
}

// Preflight connects to environment hosts and checks that the appliance
// toolkit can be installed on them.
type Preflight struct {
	// Defaults supplies timeouts, key and known_hosts settings. Host, port,
	// user and password are taken from each Target.
	Defaults Config

	// dial opens a transport; tests replace it.
	dial func(cfg *Config) (Transport, error)
}

// NewPreflight returns a preflight using defaults for every connection.
func NewPreflight(defaults Config) *Preflight {
	return &Preflight{Defaults: defaults}
}

// Check connects to target, verifies the session works and that the toolkit
// directory exists and is writable.
func (p *Preflight) Check(ctx context.Context, target Target) error {
	cfg := p.Defaults
	cfg.Host = target.Host
	cfg.User = target.User
	if target.Port != 0 {
		cfg.Port = target.Port
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if target.Password != "" {
		cfg.AuthMethod = AuthMethodPassword
		cfg.Password = target.Password
	} else if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthMethodKey
	}

	dial := p.dial
	if dial == nil {
		dial = func(cfg *Config) (Transport, error) {
			return NewSSHClient(cfg)
		}
	}
	t, err := dial(&cfg)
	if err != nil {
		return err
	}

	if err := t.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := t.Disconnect(); err != nil {
			log.Warn().Err(err).Str("host", target.Host).Msg("closing preflight connection failed")
		}
	}()

	if err := t.HealthCheck(ctx); err != nil {
		return err
	}

	if target.ToolkitPath != "" {
		_, stderr, err := t.ExecuteCommand(ctx, ToolkitCheckCommand(target.ToolkitPath))
		if err != nil {
			if stderr != "" {
				return fmt.Errorf("toolkit path %s: %s", target.ToolkitPath, stderr)
			}
			return fmt.Errorf("toolkit path %s: %w", target.ToolkitPath, err)
		}
	}

	log.Debug().Str("host", target.Host).Msg("preflight passed")
	return nil
}

// ToolkitCheckCommand returns the shell command that verifies path is a
// writable directory.
func ToolkitCheckCommand(path string) string {
	q := shellQuote(path)
	return fmt.Sprintf("test -d %s || { echo 'not a directory' >&2; exit 1; }; test -w %s || { echo 'not writable' >&2; exit 1; }", q, q)
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
