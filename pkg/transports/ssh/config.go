package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod represents the type of SSH authentication.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey uses private key authentication
	AuthMethodKey AuthMethod = "key"
)

// Config holds SSH connection configuration.
type Config struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username
	User string

	// AuthMethod specifies which authentication method to use
	AuthMethod AuthMethod

	// Password for password-based authentication
	Password string

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string

	// StrictHostKeyChecking rejects hosts missing from KnownHostsPath.
	// When false any host key is accepted.
	StrictHostKeyChecking bool

	// ConnectionTimeout is the timeout for establishing a connection
	ConnectionTimeout time.Duration

	// CommandTimeout is the default timeout for command execution
	CommandTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(host string, user string) *Config {
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
		CommandTimeout:        time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			// Try default key locations
			homeDir := os.Getenv("HOME")
			defaultKeys := []string{
				filepath.Join(homeDir, ".ssh", "id_ed25519"),
				filepath.Join(homeDir, ".ssh", "id_rsa"),
				filepath.Join(homeDir, ".ssh", "id_ecdsa"),
			}
			for _, keyPath := range defaultKeys {
				if _, err := os.Stat(keyPath); err == nil {
					c.PrivateKeyPath = keyPath
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("private key path is required for key authentication and no default key found")
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	if c.StrictHostKeyChecking && c.KnownHostsPath == "" {
		return fmt.Errorf("known_hosts path is required for strict host key checking")
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}

	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))

		// Many servers only offer keyboard-interactive for passwords.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))

	default:
		return nil, fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}

	return clientConfig, nil
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
