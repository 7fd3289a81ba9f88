package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHClient implements the Transport interface over a single connection.
type SSHClient struct {
	config *Config

	client      *ssh.Client
	connMu      sync.RWMutex
	isConnected bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

// NewSSHClient creates a new SSH transport client.
func NewSSHClient(config *Config) (*SSHClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &SSHClient{config: config}, nil
}

// Connect establishes an SSH connection to the remote host.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		// Already connected, verify connection is still alive
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		log.Warn().Str("host", c.config.Host).Msg("existing connection is dead, reconnecting")
		_ = c.client.Close()
		c.isConnected = false
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: true,
			ExitCode:    -1,
		}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	// The handshake itself ignores ctx; bound it by closing the socket.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	stop()
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: !isHandshakeRejection(err),
			IsAuthError: isHandshakeRejection(err),
			ExitCode:    -1,
		}
	}

	c.client = ssh.NewClient(ncc, chans, reqs)
	c.isConnected = true
	c.connectedAt = time.Now()
	c.lastUsedAt = c.connectedAt

	log.Info().Str("address", address).Msg("SSH connection established")
	return nil
}

// isHandshakeRejection reports whether the server refused our credentials
// or we refused its host key.
func isHandshakeRejection(err error) bool {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return true
	}
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Disconnect closes the SSH connection and releases all resources.
func (c *SSHClient) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &TransportError{
			Op:          "disconnect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	return nil
}

// IsConnected returns true if the transport has an active connection.
func (c *SSHClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *SSHClient) HealthCheck(ctx context.Context) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return c.healthCheckInternal()
}

// healthCheckInternal performs the actual health check (must be called with lock held).
func (c *SSHClient) healthCheckInternal() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	return nil
}

// GetConnectionInfo returns information about the current connection.
func (c *SSHClient) GetConnectionInfo() ConnectionInfo {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

// getClient returns the underlying SSH client.
func (c *SSHClient) getClient() (*ssh.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{
			Op:          "get-client",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
			ExitCode:    -1,
		}
	}

	c.lastUsedAt = time.Now()
	return c.client, nil
}
