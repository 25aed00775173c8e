// Package listener implements a single-session request/response server. It
// binds one endpoint, accepts exactly one peer that proves knowledge of the
// shared secret, answers every message with a fixed value and ends the
// session when the peer sends the "close" sentinel.
//
// Typical lifecycle:
//
//	srv, err := listener.Start(endpoint)
//	defer srv.Shutdown()
//	session, err := srv.AcceptSession(ctx)
//	err = listener.RunLoop(ctx, session)
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/sentinel-listener/handshake"
	"github.com/cyberinferno/sentinel-listener/logger"
)

// Endpoint is the address the server binds and the secret peers must know.
type Endpoint struct {
	Host   string
	Port   int
	Secret []byte
}

// DefaultEndpoint returns localhost:8080 with the given secret.
func DefaultEndpoint(secret []byte) Endpoint {
	return Endpoint{Host: "localhost", Port: 8080, Secret: secret}
}

// Addr returns "host:port".
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// State is a position in the server lifecycle. Transitions only move forward:
// Listening -> Accepting -> Active -> Closed.
type State int32

const (
	StateListening State = iota // Bound, no accept in progress
	StateAccepting              // Waiting for a peer or running the handshake
	StateActive                 // A session is established
	StateClosed                 // The session ended or accepting failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateListening:
		return "Listening"
	case StateAccepting:
		return "Accepting"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Server owns the listening socket and hands out at most one Session.
type Server struct {
	endpoint Endpoint
	listener net.Listener
	opts     options
	log      logger.Logger

	state        atomic.Int32
	accepted     atomic.Bool
	shutdown     atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Start binds endpoint and returns a server in StateListening. The endpoint
// is copied; later changes by the caller have no effect.
//
// Parameters:
//   - endpoint: Host, port and shared secret; port 0 picks a free port
//   - opts: Server options
//
// Returns:
//   - The listening *Server
//   - An error wrapping ErrBind if the endpoint is invalid or the address is unavailable
func Start(endpoint Endpoint, opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if len(endpoint.Secret) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBind, handshake.ErrEmptySecret)
	}

	endpoint.Secret = bytes.Clone(endpoint.Secret)
	log := o.logger.With(logger.Field{Key: "component", Value: "listener"})

	ln, err := net.Listen("tcp", endpoint.Addr())
	if err != nil {
		log.Error("listener failed to start", logger.Field{Key: "addr", Value: endpoint.Addr()}, logger.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, endpoint.Addr(), err)
	}

	s := &Server{
		endpoint: endpoint,
		listener: ln,
		opts:     o,
		log:      log,
	}
	s.state.Store(int32(StateListening))

	log.Info("listener started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return s, nil
}

// Addr returns the bound address, which differs from the endpoint when port 0 was requested.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Server) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// AcceptSession blocks until one peer connects and completes the mutual
// handshake. It is single-shot: whatever the outcome, later calls fail with
// ErrAlreadyAccepted.
//
// Parameters:
//   - ctx: Cancelling ctx abandons the wait; the handshake is further bounded by the handshake timeout
//
// Returns:
//   - The established *Session in StateActive
//   - ErrAuth if the peer failed the handshake, ErrServerClosed if Shutdown
//     ran before the session was established, or ctx's error
func (s *Server) AcceptSession(ctx context.Context) (*Session, error) {
	if s.shutdown.Load() {
		return nil, ErrServerClosed
	}

	if !s.accepted.CompareAndSwap(false, true) {
		return nil, ErrAlreadyAccepted
	}

	s.setState(StateAccepting)

	conn, err := s.accept(ctx)
	if err != nil {
		s.setState(StateClosed)
		return nil, err
	}

	remote := conn.RemoteAddr().String()
	hsCtx, cancel := context.WithTimeout(ctx, s.opts.handshakeTimeout)
	defer cancel()

	if err := handshake.Server(hsCtx, conn, s.endpoint.Secret); err != nil {
		_ = conn.Close()
		s.setState(StateClosed)
		s.log.Warn("handshake failed", logger.Field{Key: "remote", Value: remote}, logger.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %s: %w", ErrAuth, remote, err)
	}

	// Shutdown may have closed the server while the handshake ran.
	if !s.transition(StateAccepting, StateActive) {
		_ = conn.Close()
		s.log.Warn("server shut down during handshake", logger.Field{Key: "remote", Value: remote})
		return nil, ErrServerClosed
	}

	session := newSession(NewConnTransport(conn, s.opts.maxMessageSize, s.opts.idleTimeout), s.opts)
	session.onClose = func() { s.setState(StateClosed) }

	s.log.Info("session accepted", logger.Field{Key: "session", Value: session.ID()}, logger.Field{Key: "remote", Value: remote})
	return session, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	if d, ok := s.listener.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	conn, err := s.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("accept interrupted: %w", ctx.Err())
		}

		if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
			return nil, ErrServerClosed
		}

		s.log.Error("accept error", logger.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("accept: %w", err)
	}

	return conn, nil
}

// Shutdown releases the listening socket. A session already accepted is not
// affected. It is idempotent; later calls return the first result.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdown.Store(true)
		s.shutdownErr = s.listener.Close()

		if !s.transition(StateListening, StateClosed) {
			s.transition(StateAccepting, StateClosed)
		}

		s.log.Info("listener stopped")
	})

	return s.shutdownErr
}

// Serve runs the whole lifecycle: accept one session, run it to completion
// and shut the listener down.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.Shutdown()
	}()

	session, err := s.AcceptSession(ctx)
	if err != nil {
		return err
	}

	return RunLoop(ctx, session)
}
