package handshake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sentinel-listener/wire"
)

// runPair runs server and client ends of a handshake over net.Pipe and
// returns both results.
func runPair(t *testing.T, serverSecret, clientSecret string) (serverErr, clientErr error) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		_ = serverConn.Close()
		_ = clientConn.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Client(ctx, clientConn, []byte(clientSecret))
	}()

	serverErr = Server(ctx, serverConn, []byte(serverSecret))
	if serverErr != nil {
		_ = serverConn.Close()
	}

	clientErr = <-done
	return serverErr, clientErr
}

func TestMutualHandshake(t *testing.T) {
	t.Run("matching secrets authenticate both sides", func(t *testing.T) {
		serverErr, clientErr := runPair(t, "sve", "sve")
		assert.NoError(t, serverErr)
		assert.NoError(t, clientErr)
	})

	t.Run("wrong client secret fails on both sides", func(t *testing.T) {
		serverErr, clientErr := runPair(t, "sve", "guess")
		assert.ErrorIs(t, serverErr, ErrAuthFailed)
		assert.ErrorIs(t, clientErr, ErrAuthFailed)
	})
}

func TestDeliver(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		serverConn, _ := net.Pipe()
		defer serverConn.Close()

		err := Deliver(context.Background(), serverConn, nil)
		assert.ErrorIs(t, err, ErrEmptySecret)
	})

	t.Run("challenge is tagged and carries a fresh nonce", func(t *testing.T) {
		serverConn, peer := net.Pipe()
		defer serverConn.Close()
		defer peer.Close()

		go func() { _ = Deliver(context.Background(), serverConn, []byte("sve")) }()

		first, err := wire.ReadFrame(peer, MaxFrameSize)
		require.NoError(t, err)
		assert.Equal(t, "#CHALLENGE#{sha256}", string(first[:19]))
		assert.Len(t, first, 19+NonceSize)
	})

	t.Run("interrupted by context cancellation", func(t *testing.T) {
		serverConn, peer := net.Pipe()
		defer serverConn.Close()
		defer peer.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Deliver(ctx, serverConn, []byte("sve")) }()

		// Drain the challenge, then stay silent.
		_, err := wire.ReadFrame(peer, MaxFrameSize)
		require.NoError(t, err)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Deliver did not return after cancel")
		}
	})
}

func TestAnswer(t *testing.T) {
	t.Run("rejects a frame that is not a challenge", func(t *testing.T) {
		conn, peer := net.Pipe()
		defer conn.Close()
		defer peer.Close()

		go func() { _ = wire.WriteFrame(peer, []byte("hello")) }()

		err := Answer(context.Background(), conn, []byte("sve"))
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("rejects an oversized frame", func(t *testing.T) {
		conn, peer := net.Pipe()
		defer conn.Close()
		defer peer.Close()

		go func() { _ = wire.WriteFrame(peer, make([]byte, MaxFrameSize+1)) }()

		err := Answer(context.Background(), conn, []byte("sve"))
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("digest is deterministic per secret", func(t *testing.T) {
		challenge := []byte("{sha256}nonce")
		assert.Equal(t, digest([]byte("a"), challenge), digest([]byte("a"), challenge))
		assert.NotEqual(t, digest([]byte("a"), challenge), digest([]byte("b"), challenge))
	})
}
