package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sftpTestServer is a minimal SSH server whose session channels serve the
// SFTP subsystem against the local filesystem.
type sftpTestServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	hostKey  ssh.PublicKey
	done     chan struct{}
}

func startSFTPServer(t *testing.T) *sftpTestServer {
	t.Helper()

	signer, hostPub := newHostKey(t)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "deploy" && string(pass) == "swordfish" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		// Any key is accepted, the tests only exercise the client side.
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := &sftpTestServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		hostKey:  hostPub,
		done:     make(chan struct{}),
	}

	go srv.acceptLoop()
	t.Cleanup(func() {
		close(srv.done)
		srv.listener.Close()
	})

	return srv
}

func (s *sftpTestServer) acceptLoop() {
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
		go s.handleConn(conn)
	}
}

func (s *sftpTestServer) handleConn(netConn net.Conn) {
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
		go s.serveSession(channel, requests)
	}
}

// serveSession answers the sftp subsystem request and hands the channel to
// an SFTP server. Everything else is refused.
func (s *sftpTestServer) serveSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		// The subsystem payload is a length-prefixed name.
		ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
		if req.WantReply {
			req.Reply(ok, nil)
		}
		if !ok {
			continue
		}

		server, err := sftp.NewServer(channel)
		if err != nil {
			return
		}
		_ = server.Serve()
		return
	}
}

// newHostKey generates a host key pair for the test server.
func newHostKey(t *testing.T) (ssh.Signer, ssh.PublicKey) {
	t.Helper()

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		t.Fatalf("failed to convert public key: %v", err)
	}
	return signer, sshPub
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("failed to split address %s: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse port %s: %v", portStr, err)
	}
	return host, port
}

// testConfig builds a password-auth config pointed at the test server.
func testConfig(t *testing.T, server *sftpTestServer) *Config {
	t.Helper()

	host, port := splitAddr(t, server.addr)

	config := DefaultConfig(host, "deploy")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "swordfish"
	config.StrictHostKeyChecking = false

	return config
}

// newTestClient connects a client to the test server.
func newTestClient(t *testing.T, server *sftpTestServer) *Client {
	t.Helper()

	client, err := NewClient(testConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestClientConnect(t *testing.T) {
	server := startSFTPServer(t)

	client, err := NewClient(testConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	if !client.Connected() {
		t.Error("expected client to be connected")
	}

	// Connecting again is a no-op
	if err := client.Connect(ctx); err != nil {
		t.Errorf("reconnect on live client failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if client.Connected() {
		t.Error("expected client to be disconnected")
	}

	// Closing an unconnected client is a no-op
	if err := client.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestClientConnectBadPassword(t *testing.T) {
	server := startSFTPServer(t)

	config := testConfig(t, server)
	config.Password = "wrong"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err == nil {
		_ = client.Close()
		t.Fatal("expected authentication error, got nil")
	}

	if client.Connected() {
		t.Error("expected client to remain disconnected")
	}
}

func TestClientKeyAuth(t *testing.T) {
	server := startSFTPServer(t)

	keyPath := filepath.Join(t.TempDir(), "test_key")
	if err := os.WriteFile(keyPath, testPrivateKeyPEM(t), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	config := testConfig(t, server)
	config.AuthMethod = AuthMethodKey
	config.PrivateKeyPath = keyPath

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Close()

	if !client.Connected() {
		t.Error("expected client to be connected")
	}
}

func TestClientKnownHostsVerification(t *testing.T) {
	server := startSFTPServer(t)

	writeKnownHosts := func(t *testing.T, key ssh.PublicKey) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{server.addr}, key) + "\n"
		if err := os.WriteFile(path, []byte(line), 0600); err != nil {
			t.Fatalf("failed to write known_hosts: %v", err)
		}
		return path
	}

	t.Run("matching host key", func(t *testing.T) {
		config := testConfig(t, server)
		config.StrictHostKeyChecking = true
		config.KnownHostsPath = writeKnownHosts(t, server.hostKey)

		client, err := NewClient(config)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("failed to connect with verified host key: %v", err)
		}
		defer client.Close()
	})

	t.Run("mismatched host key", func(t *testing.T) {
		_, otherKey := newHostKey(t)

		config := testConfig(t, server)
		config.StrictHostKeyChecking = true
		config.KnownHostsPath = writeKnownHosts(t, otherKey)

		client, err := NewClient(config)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		if err := client.Connect(context.Background()); err == nil {
			_ = client.Close()
			t.Fatal("expected host key mismatch error, got nil")
		}
	})
}

func TestClientConnectCancelled(t *testing.T) {
	// A listener that accepts TCP connections but never speaks SSH, so the
	// handshake hangs until the context deadline fires.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	hold := make(chan struct{})
	defer close(hold)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		<-hold
		conn.Close()
	}()

	host, port := splitAddr(t, listener.Addr().String())

	config := DefaultConfig(host, "deploy")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "swordfish"
	config.StrictHostKeyChecking = false
	config.ConnectTimeout = 5 * time.Second

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = client.Connect(ctx)
	if err == nil {
		_ = client.Close()
		t.Fatal("expected connect to fail, got nil")
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got: %v", err)
	}
}

func TestClientFilesBeforeConnect(t *testing.T) {
	server := startSFTPServer(t)

	client, err := NewClient(testConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Files(); err == nil {
		t.Fatal("expected error for unconnected client, got nil")
	}
}

func TestFilesRoundTrip(t *testing.T) {
	server := startSFTPServer(t)
	client := newTestClient(t, server)

	files, err := client.Files()
	if err != nil {
		t.Fatalf("failed to open files handle: %v", err)
	}

	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "nested", "greeting.txt")

	if err := files.WriteAtomic(ctx, target, []byte("hello world\n"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	data, err := files.Read(ctx, target)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "hello world\n" {
		t.Errorf("expected 'hello world\\n', got %q", string(data))
	}

	info, err := files.Stat(ctx, target)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %04o", info.Mode().Perm())
	}

	// Overwrite replaces the content in place
	if err := files.WriteAtomic(ctx, target, []byte("updated\n"), 0600); err != nil {
		t.Fatalf("failed to overwrite file: %v", err)
	}

	data, err = files.Read(ctx, target)
	if err != nil {
		t.Fatalf("failed to read file after overwrite: %v", err)
	}
	if string(data) != "updated\n" {
		t.Errorf("expected 'updated\\n', got %q", string(data))
	}

	if err := files.Chmod(ctx, target, 0644); err != nil {
		t.Fatalf("failed to chmod file: %v", err)
	}

	info, err = files.Stat(ctx, target)
	if err != nil {
		t.Fatalf("failed to stat file after chmod: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected mode 0644, got %04o", info.Mode().Perm())
	}

	if err := files.Remove(ctx, target); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	if _, err := files.Read(ctx, target); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist after removal, got: %v", err)
	}
}

func TestFilesMissingTargets(t *testing.T) {
	server := startSFTPServer(t)
	client := newTestClient(t, server)

	files, err := client.Files()
	if err != nil {
		t.Fatalf("failed to open files handle: %v", err)
	}

	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "absent.txt")

	if _, err := files.Read(ctx, missing); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist from read, got: %v", err)
	}

	if _, err := files.Stat(ctx, missing); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist from stat, got: %v", err)
	}

	if err := files.Remove(ctx, missing); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist from remove, got: %v", err)
	}
}

func TestFilesCancelledContext(t *testing.T) {
	server := startSFTPServer(t)
	client := newTestClient(t, server)

	files, err := client.Files()
	if err != nil {
		t.Fatalf("failed to open files handle: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := files.Read(ctx, "/tmp/whatever"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}

	if err := files.WriteAtomic(ctx, "/tmp/whatever", []byte("x"), 0644); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}
