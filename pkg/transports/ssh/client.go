// Package ssh provides the SSH transport behind resources that manage
// state on remote hosts. A Client serves one invocation: dial, operate
// through the SFTP-backed Files handle, Close.
package ssh

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client is a single SSH connection with an on-demand SFTP session.
type Client struct {
	config *Config

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
}

// dialResult carries the outcome of the asynchronous dial.
type dialResult struct {
	conn *ssh.Client
	err  error
}

// NewClient validates the configuration and prepares an unconnected client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{config: config}, nil
}

// Connect establishes the SSH connection. Connecting an already connected
// client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	clientConfig, err := c.config.BuildClientConfig()
	if err != nil {
		return fmt.Errorf("failed to build client config: %w", err)
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	results := make(chan dialResult, 1)
	go func() {
		conn, err := ssh.Dial("tcp", address, clientConfig)
		results <- dialResult{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close a dial that completes after cancellation.
		go func() {
			if res := <-results; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return fmt.Errorf("failed to connect to %s: %w", address, ctx.Err())
	case res := <-results:
		if res.err != nil {
			return fmt.Errorf("failed to connect to %s: %w", address, res.err)
		}
		c.conn = res.conn
		log.Debug().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Connected returns true if the client holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Files opens the SFTP subsystem on the current connection and returns the
// file operation handle. The handle shares the connection lifecycle and is
// released by Close.
func (c *Client) Files() (*Files, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if c.sftp == nil {
		sftpClient, err := sftp.NewClient(c.conn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sftp session: %w", err)
		}
		c.sftp = sftpClient
	}

	return &Files{sftp: c.sftp}, nil
}

// Close releases the SFTP session and the SSH connection. Close is safe to
// call on an unconnected client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}

	err := c.conn.Close()
	c.conn = nil

	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}
