package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// abandonGrace bounds the wait for a timed-out command to let go of its
// output buffers before the connection is torn down.
const abandonGrace = 5 * time.Second

// ExecuteCommand runs a command on the remote host. The command is bounded
// by ctx and by the configured CommandTimeout.
func (c *SSHClient) ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error) {
	startTime := time.Now()

	log.Debug().Str("command", cmd).Msg("executing command")

	sshClient, err := c.getClient()
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()

	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		execErr = ctx.Err()
		// Run still owns the buffers until it returns.
		select {
		case <-doneChan:
		case <-time.After(abandonGrace):
			_ = sshClient.Close()
			<-doneChan
		}
	case execErr = <-doneChan:
	}

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", cmd).
		Int("stdout_len", len(stdout)).
		Int("stderr_len", len(stderr)).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			// Command ran but returned non-zero exit code
			return stdout, stderr, &TransportError{
				Op:          "execute",
				Err:         fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
				IsTemporary: false,
				IsAuthError: false,
				ExitCode:    exitErr.ExitStatus(),
			}
		}
		return stdout, stderr, &TransportError{
			Op:          "execute",
			Err:         execErr,
			IsTemporary: true,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	return stdout, stderr, nil
}
