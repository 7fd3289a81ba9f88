// Package ssh provides the SSH transport used to check environment hosts
// before they are registered with an appliance.
package ssh

import (
	"context"
	"errors"
	"time"
)

// Transport defines the interface for SSH-based remote operations.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand runs a command on the remote host.
	// Returns stdout, stderr, and any error that occurred.
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool

	// ExitCode is the remote exit status of a failed command, or -1.
	ExitCode int
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying may succeed.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsAuthError
}
