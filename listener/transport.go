package listener

import (
	"net"
	"time"

	"github.com/cyberinferno/sentinel-listener/wire"
)

// Transport is the message-level connection a Session runs on. The server
// uses a framed TCP connection; tests may substitute their own.
type Transport interface {
	// Recv blocks until one message arrives or the transport fails.
	Recv() (wire.Message, error)

	// Send writes one message.
	Send(msg wire.Message) error

	// Close releases the underlying connection.
	Close() error

	// RemoteAddr describes the peer.
	RemoteAddr() string
}

// connTransport frames messages over a net.Conn.
type connTransport struct {
	conn        net.Conn
	codec       *wire.Codec
	idleTimeout time.Duration
}

// NewConnTransport returns a Transport over conn.
//
// Parameters:
//   - conn: An authenticated connection
//   - maxMessageSize: Largest accepted frame body; zero or less means wire.DefaultMaxFrameSize
//   - idleTimeout: Longest wait for one message; zero means wait forever
//
// Returns:
//   - The Transport; closing it closes conn
func NewConnTransport(conn net.Conn, maxMessageSize int, idleTimeout time.Duration) Transport {
	return &connTransport{
		conn:        conn,
		codec:       wire.NewCodec(conn, maxMessageSize),
		idleTimeout: idleTimeout,
	}
}

func (t *connTransport) Recv() (wire.Message, error) {
	if t.idleTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout)); err != nil {
			return nil, err
		}
	}

	return t.codec.Decode()
}

func (t *connTransport) Send(msg wire.Message) error {
	return t.codec.Encode(msg)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
