// Package client is the peer side of the listener protocol: it dials the
// server, runs the mutual shared-secret handshake and exchanges messages.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/sentinel-listener/handshake"
	"github.com/cyberinferno/sentinel-listener/wire"
)

// ConnectionState represents the current state of the client connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial or handshake in progress
	Connected                           // Authenticated and ready
	Closed                              // Client has been closed and cannot be reused
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	// ErrAuth is returned by Connect when the server rejects the secret or
	// fails to prove it knows it.
	ErrAuth = errors.New("authentication rejected")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("client is closed")

	// ErrNotConnected is returned by Send and Recv before Connect succeeds.
	ErrNotConnected = errors.New("not connected")
)

// Config holds connection settings for a Client.
type Config struct {
	// Address is the "host:port" to connect to (e.g. "localhost:8080").
	Address string
	// Secret is the shared secret expected by the server.
	Secret []byte
	// ConnectionTimeout is the max duration for establishing the TCP connection.
	ConnectionTimeout time.Duration
	// HandshakeTimeout is the max duration for the authentication exchange.
	HandshakeTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the max duration to wait for a reply; 0 means no timeout.
	ReadTimeout time.Duration
	// MaxMessageSize bounds a received message body; 0 means wire.DefaultMaxFrameSize.
	MaxMessageSize int
}

// DefaultConfig returns a Config with default timeouts for the given address
// and secret.
//
// Parameters:
//   - address: The "host:port" to connect to
//   - secret: The shared secret
//
// Returns:
//   - A Config with ConnectionTimeout 10s, HandshakeTimeout 10s,
//     WriteTimeout 10s and ReadTimeout 0
func DefaultConfig(address string, secret []byte) Config {
	return Config{
		Address:           address,
		Secret:            secret,
		ConnectionTimeout: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       0,
	}
}

// Client is a connection to a listener. Send, Recv and Request may be
// called from multiple goroutines, but replies are matched to requests only
// by order.
type Client struct {
	config Config
	conn   net.Conn
	codec  *wire.Codec
	state  ConnectionState

	mu      sync.RWMutex
	writeMu sync.Mutex
}

// New creates a Client in Disconnected state; call Connect to establish
// the session.
func New(config Config) *Client {
	config.Secret = bytes.Clone(config.Secret)
	return &Client{
		config: config,
		state:  Disconnected,
	}
}

// Dial creates a Client and connects it.
//
// Parameters:
//   - ctx: Bounds dialing and the handshake
//   - config: Connection settings (e.g. from DefaultConfig)
//
// Returns:
//   - The connected *Client
//   - An error from Connect
func Dial(ctx context.Context, config Config) (*Client, error) {
	c := New(config)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect dials the server and runs the mutual handshake.
//
// Returns:
//   - nil on success; ErrClosed after Close, an error if already connected,
//     ErrAuth if authentication fails, or the dial error
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Connected, Connecting:
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = Connecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		_ = conn.Close()
		return ErrClosed
	}

	c.conn = conn
	c.codec = wire.NewCodec(conn, c.config.MaxMessageSize)
	c.state = Connected
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, err
	}

	hsCtx := ctx
	if c.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}

	if err := handshake.Client(hsCtx, conn, c.config.Secret); err != nil {
		_ = conn.Close()
		if errors.Is(err, handshake.ErrAuthFailed) || errors.Is(err, handshake.ErrProtocol) {
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}

		return nil, fmt.Errorf("handshake with %s: %w", c.config.Address, err)
	}

	return conn, nil
}

func (c *Client) connected() (net.Conn, *wire.Codec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.state {
	case Closed:
		return nil, nil, ErrClosed
	case Connected:
		return c.conn, c.codec, nil
	default:
		return nil, nil, ErrNotConnected
	}
}

// Send writes one message. When WriteTimeout is set, the write is limited
// to that duration.
func (c *Client) Send(msg wire.Message) error {
	conn, codec, err := c.connected()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return c.wrapIOErr(err)
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{}) // Best effort to clear deadline
		}()
	}

	return c.wrapIOErr(codec.Encode(msg))
}

// Recv waits for the next message from the server. io.EOF means the server
// closed the session.
func (c *Client) Recv() (wire.Message, error) {
	conn, codec, err := c.connected()
	if err != nil {
		return nil, err
	}

	if c.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			return nil, c.wrapIOErr(err)
		}
	}

	msg, err := codec.Decode()
	return msg, c.wrapIOErr(err)
}

// Request sends msg and waits for the reply.
func (c *Client) Request(msg wire.Message) (wire.Message, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}

	return c.Recv()
}

// CloseSession sends the sentinel, checks the acknowledgement and closes
// the client.
func (c *Client) CloseSession() error {
	reply, err := c.Request(wire.Sentinel)
	if err != nil {
		_ = c.Close()
		return err
	}

	if err := c.Close(); err != nil {
		return err
	}

	if ack, ok := reply.(string); !ok || ack != wire.Acknowledgement {
		return fmt.Errorf("unexpected acknowledgement %v", reply)
	}

	return nil
}

// wrapIOErr reports I/O on a connection closed by Close as ErrClosed.
func (c *Client) wrapIOErr(err error) error {
	if err == nil {
		return nil
	}

	if c.State() == Closed && errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}

// Close shuts the connection. Idempotent; after Close the client is in
// Closed state and must not be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}

	c.state = Closed
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	return err
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Closed {
		c.state = state
	}
}
