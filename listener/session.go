package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cyberinferno/sentinel-listener/history"
	"github.com/cyberinferno/sentinel-listener/logger"
	"github.com/cyberinferno/sentinel-listener/wire"
)

const recordTimeout = 5 * time.Second

// Session is the single established connection between the server and one
// peer. It is owned by RunLoop; Close may be called from any goroutine.
type Session struct {
	id        string
	transport Transport
	log       logger.Logger
	clock     clockwork.Clock
	recorder  history.Recorder
	startedAt time.Time
	onClose   func()

	messages  atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an already authenticated transport. The server builds
// sessions itself; NewSession lets RunLoop be driven over any Transport.
//
// Parameters:
//   - transport: The message transport for this session
//   - opts: WithLogger, WithClock and WithRecorder apply; other options are ignored
//
// Returns:
//   - A new active *Session with a fresh UUID
func NewSession(transport Transport, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return newSession(transport, o)
}

func newSession(transport Transport, o options) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		transport: transport,
		log:       o.logger.With(logger.Field{Key: "session", Value: id}, logger.Field{Key: "remote", Value: transport.RemoteAddr()}),
		clock:     o.clock,
		recorder:  o.recorder,
		startedAt: o.clock.Now(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.transport.RemoteAddr()
}

// Messages returns how many messages have been received so far.
func (s *Session) Messages() int {
	return int(s.messages.Load())
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Recv blocks until the next message arrives.
//
// Returns:
//   - The message
//   - ErrPeerClosed if the peer disconnected, ErrSessionClosed if the session
//     was closed locally, or ErrReceive for any other failure
func (s *Session) Recv() (wire.Message, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	msg, err := s.transport.Recv()
	if err != nil {
		return nil, s.classifyRecv(err)
	}

	s.messages.Add(1)
	return msg, nil
}

func (s *Session) classifyRecv(err error) error {
	switch {
	case s.closed.Load(), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	default:
		return fmt.Errorf("%w: %w", ErrReceive, err)
	}
}

// Send writes msg to the peer. Sending on a closed session fails with
// ErrSessionClosed.
func (s *Session) Send(msg wire.Message) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", ErrSend, ErrSessionClosed)
	}

	if err := s.transport.Send(msg); err != nil {
		if s.closed.Load() {
			return fmt.Errorf("%w: %w", ErrSend, ErrSessionClosed)
		}

		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	return nil
}

// Close releases the transport. It is safe to call multiple times; later
// calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.transport.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})

	return s.closeErr
}

// record reports the finished session to the configured recorder.
func (s *Session) record(ctx context.Context, loopErr error) {
	rec := history.Record{
		SessionID:  s.id,
		RemoteAddr: s.RemoteAddr(),
		StartedAt:  s.startedAt,
		EndedAt:    s.clock.Now(),
		Messages:   s.Messages(),
		Outcome:    outcomeOf(loopErr),
	}
	if loopErr != nil {
		rec.Error = loopErr.Error()
	}

	s.log.Info("session ended",
		logger.Field{Key: "outcome", Value: string(rec.Outcome)},
		logger.Field{Key: "messages", Value: rec.Messages},
		logger.Field{Key: "duration", Value: rec.Duration().String()},
	)

	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.recorder.Save(ctx, rec); err != nil {
		s.log.Warn("failed to record session", logger.Field{Key: "error", Value: err.Error()})
	}
}

func outcomeOf(err error) history.Outcome {
	switch {
	case err == nil:
		return history.OutcomeClosed
	case errors.Is(err, ErrPeerClosed):
		return history.OutcomePeerClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return history.OutcomeCancelled
	default:
		return history.OutcomeFailed
	}
}
