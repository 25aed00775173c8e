package listener

import "errors"

var (
	// ErrBind is returned by Start when the endpoint cannot be bound.
	ErrBind = errors.New("bind failed")

	// ErrAuth is returned by AcceptSession when the peer fails the handshake.
	ErrAuth = errors.New("authentication failed")

	// ErrPeerClosed is returned by RunLoop when the peer disconnects before
	// sending the sentinel.
	ErrPeerClosed = errors.New("peer closed the session")

	// ErrSend wraps transport failures while replying to the peer.
	ErrSend = errors.New("send failed")

	// ErrReceive wraps transport and decoding failures while reading from the peer.
	ErrReceive = errors.New("receive failed")

	// ErrSessionClosed is returned for I/O on a session that has been closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrAlreadyAccepted is returned by a second AcceptSession on the same server.
	ErrAlreadyAccepted = errors.New("session already accepted")

	// ErrServerClosed is returned by AcceptSession after Shutdown.
	ErrServerClosed = errors.New("server shut down")
)
