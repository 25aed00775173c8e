// Package handshake authenticates a peer with a shared secret before any
// application message is exchanged. One side delivers a random challenge, the
// other proves knowledge of the secret by returning its HMAC-SHA256 digest.
// Running the exchange in both directions gives mutual authentication.
package handshake

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyberinferno/sentinel-listener/wire"
)

const (
	// NonceSize is the number of random bytes in a challenge.
	NonceSize = 40

	// MaxFrameSize bounds every handshake frame.
	MaxFrameSize = 256
)

var (
	challengePrefix = []byte("#CHALLENGE#")
	welcome         = []byte("#WELCOME#")
	failure         = []byte("#FAILURE#")
	digestTag       = []byte("{sha256}")
)

var (
	// ErrAuthFailed is returned when either side presents the wrong secret.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrProtocol is returned when the peer sends something that is not part
	// of the handshake.
	ErrProtocol = errors.New("handshake protocol violation")

	// ErrEmptySecret is returned when no secret is configured.
	ErrEmptySecret = errors.New("empty shared secret")
)

// Server runs the accepting side of a mutual handshake: it challenges the
// peer first, then answers the peer's challenge.
func Server(ctx context.Context, conn io.ReadWriter, secret []byte) error {
	if err := Deliver(ctx, conn, secret); err != nil {
		return err
	}

	return Answer(ctx, conn, secret)
}

// Client runs the dialing side of a mutual handshake, the mirror of Server.
func Client(ctx context.Context, conn io.ReadWriter, secret []byte) error {
	if err := Answer(ctx, conn, secret); err != nil {
		return err
	}

	return Deliver(ctx, conn, secret)
}

// Deliver sends a fresh challenge and checks the peer's digest. The peer is
// told #WELCOME# or #FAILURE# either way.
//
// Parameters:
//   - ctx: Bounds the exchange; cancellation interrupts blocked I/O when conn supports deadlines
//   - conn: The connection to the peer
//   - secret: The shared secret
//
// Returns:
//   - ErrAuthFailed if the digest does not match, or an I/O or protocol error
func Deliver(ctx context.Context, conn io.ReadWriter, secret []byte) (err error) {
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	defer watch(ctx, conn, &err)()

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	challenge := append(bytes.Clone(digestTag), nonce...)
	if err := wire.WriteFrame(conn, append(bytes.Clone(challengePrefix), challenge...)); err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}

	response, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if !hmac.Equal(response, digest(secret, challenge)) {
		_ = wire.WriteFrame(conn, failure)
		return ErrAuthFailed
	}

	if err := wire.WriteFrame(conn, welcome); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}

	return nil
}

// Answer reads the peer's challenge, replies with the digest and waits for
// the verdict.
//
// Parameters:
//   - ctx: Bounds the exchange; cancellation interrupts blocked I/O when conn supports deadlines
//   - conn: The connection to the peer
//   - secret: The shared secret
//
// Returns:
//   - ErrAuthFailed if the peer rejected the digest, or an I/O or protocol error
func Answer(ctx context.Context, conn io.ReadWriter, secret []byte) (err error) {
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	defer watch(ctx, conn, &err)()

	msg, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}

	challenge, ok := bytes.CutPrefix(msg, challengePrefix)
	if !ok || !bytes.HasPrefix(challenge, digestTag) {
		return fmt.Errorf("%w: expected %s{sha256}", ErrProtocol, challengePrefix)
	}

	if err := wire.WriteFrame(conn, digest(secret, challenge)); err != nil {
		return fmt.Errorf("send response: %w", err)
	}

	verdict, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("read verdict: %w", err)
	}

	switch {
	case bytes.Equal(verdict, welcome):
		return nil
	case bytes.Equal(verdict, failure):
		return ErrAuthFailed
	default:
		return fmt.Errorf("%w: unexpected verdict", ErrProtocol)
	}
}

// digest returns the tagged HMAC-SHA256 of challenge under secret.
func digest(secret, challenge []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(challenge)
	return mac.Sum(bytes.Clone(digestTag))
}

func readFrame(r io.Reader) ([]byte, error) {
	body, err := wire.ReadFrame(r, MaxFrameSize)
	if errors.Is(err, wire.ErrFrameTooLarge) {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	return body, err
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// watch applies ctx to conn for the duration of one exchange. The returned
// func clears the deadline and, if ctx ended, replaces *errp with ctx.Err().
func watch(ctx context.Context, conn io.ReadWriter, errp *error) func() {
	d, ok := conn.(deadliner)
	if !ok {
		return func() {}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = d.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = d.SetDeadline(time.Unix(1, 0))
	})

	return func() {
		stop()
		_ = d.SetDeadline(time.Time{})

		if *errp == nil || errors.Is(*errp, ErrAuthFailed) {
			return
		}

		if ctxErr := contextError(ctx); ctxErr != nil {
			*errp = fmt.Errorf("handshake interrupted: %w", ctxErr)
		}
	}
}

// contextError is ctx.Err(), except that a passed deadline counts even if
// the context's own timer has not fired yet.
func contextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}

	return nil
}
