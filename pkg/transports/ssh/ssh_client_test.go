package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// testSSHServer provides a minimal SSH server for testing.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}
}

// newTestSSHServer creates a new test SSH server.
func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, privateKey, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			// Accept any public key for testing
			return nil, nil
		},
	}

	config.AddHostKey(privateKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
	}

	go server.serve()

	return server
}

// serve handles incoming connections.
func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single SSH connection.
func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go s.handleChannel(channel, requests)
	}
}

// handleChannel answers exec requests with canned output.
func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		command := string(req.Payload[4:]) // Skip the length prefix
		if req.WantReply {
			req.Reply(true, nil)
		}

		switch {
		case command == "true":
			exit(channel, 0)
		case command == "echo test":
			channel.Write([]byte("test\n"))
			exit(channel, 0)
		case command == "echo error >&2":
			channel.Stderr().Write([]byte("error\n"))
			exit(channel, 0)
		case command == "exit 1":
			exit(channel, 1)
		case command == "sleep 60":
			time.Sleep(2 * time.Second)
			exit(channel, 0)
		case command == "tail -f /var/log/messages":
			for i := 0; i < 50; i++ {
				channel.Write([]byte("line\n"))
				channel.Stderr().Write([]byte("warning\n"))
				time.Sleep(10 * time.Millisecond)
			}
			exit(channel, 0)
		case strings.Contains(command, "/readonly"):
			channel.Stderr().Write([]byte("not writable\n"))
			exit(channel, 1)
		default:
			channel.Write([]byte("command: " + command + "\n"))
			exit(channel, 0)
		}
		return
	}
}

func exit(channel ssh.Channel, status byte) {
	channel.SendRequest("exit-status", false, []byte{0, 0, 0, status})
}

// close shuts down the test server.
func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

// generateTestKey generates a test SSH key pair.
func generateTestKey() (ssh.PublicKey, ssh.Signer, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return nil, nil, err
	}

	publicKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}

	return publicKey, signer, nil
}

// testConfig returns a password config for server.
func testConfig(server *testSSHServer) *Config {
	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second
	return config
}

func connectedClient(t *testing.T, server *testSSHServer) *SSHClient {
	t.Helper()

	client, err := NewSSHClient(testConfig(server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestSSHClientConnect(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectedClient(t, server)

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}

	info := client.GetConnectionInfo()
	if info.User != "testuser" {
		t.Errorf("expected user 'testuser', got '%s'", info.User)
	}
	if info.ConnectedAt.IsZero() {
		t.Error("expected connection time")
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}

	if err := client.Disconnect(); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected client to be disconnected")
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check to fail after disconnect")
	}
}

func TestSSHClientRejectsBadPassword(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server)
	config.Password = "wrong"

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	err = client.Connect(context.Background())
	if err == nil {
		client.Disconnect()
		t.Fatal("expected authentication failure")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestSSHClientKeyBasedAuth(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server)
	config.AuthMethod = AuthMethodKey
	config.Password = ""
	config.PrivateKeyPath = writeTestKey(t)

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}
}

func TestSSHClientExecuteCommand(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectedClient(t, server)
	ctx := context.Background()

	tests := []struct {
		name           string
		command        string
		expectError    bool
		expectedStdout string
		expectedStderr string
		expectedCode   int
	}{
		{
			name:           "simple echo",
			command:        "echo test",
			expectedStdout: "test",
		},
		{
			name:           "stderr output",
			command:        "echo error >&2",
			expectedStderr: "error",
		},
		{
			name:         "exit with error",
			command:      "exit 1",
			expectError:  true,
			expectedCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := client.ExecuteCommand(ctx, tt.command)

			if tt.expectError {
				var te *TransportError
				if !errors.As(err, &te) {
					t.Fatalf("expected transport error, got %v", err)
				}
				if te.ExitCode != tt.expectedCode {
					t.Errorf("expected exit code %d, got %d", tt.expectedCode, te.ExitCode)
				}
				if te.Temporary() {
					t.Error("expected a non-zero exit to be permanent")
				}
				return
			}

			if err != nil {
				t.Fatalf("command failed: %v", err)
			}
			if stdout != tt.expectedStdout {
				t.Errorf("expected stdout '%s', got '%s'", tt.expectedStdout, stdout)
			}
			if stderr != tt.expectedStderr {
				t.Errorf("expected stderr '%s', got '%s'", tt.expectedStderr, stderr)
			}
		})
	}
}

func TestSSHClientCommandTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server)
	config.CommandTimeout = 100 * time.Millisecond
	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Disconnect()

	_, _, err = client.ExecuteCommand(context.Background(), "sleep 60")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSSHClientTimeoutWhileStreaming(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server)
	config.CommandTimeout = 100 * time.Millisecond
	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Disconnect()

	start := time.Now()
	stdout, _, err := client.ExecuteCommand(context.Background(), "tail -f /var/log/messages")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > abandonGrace+time.Second {
		t.Errorf("ExecuteCommand returned after %v", elapsed)
	}
	if stdout != "" && !strings.HasPrefix(stdout, "line") {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestExecuteRequiresConnection(t *testing.T) {
	client, err := NewSSHClient(&Config{
		Host:              "dbhost01.example.com",
		Port:              22,
		User:              "oracle",
		AuthMethod:        AuthMethodPassword,
		Password:          "secret",
		ConnectionTimeout: time.Second,
		CommandTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, _, err := client.ExecuteCommand(context.Background(), "true"); err == nil {
		t.Error("expected error without a connection")
	}
}

// parseAddress splits an address into host and port.
func parseAddress(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}
