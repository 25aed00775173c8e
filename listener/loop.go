package listener

import (
	"context"
	"fmt"

	"github.com/cyberinferno/sentinel-listener/logger"
	"github.com/cyberinferno/sentinel-listener/wire"
)

// RunLoop serves session until it ends. Every message other than the
// sentinel is answered with wire.Response; the sentinel is answered with
// wire.Acknowledgement and ends the loop. The session is closed on every
// exit path and, if a recorder is configured, reported to it.
//
// Parameters:
//   - ctx: Cancelling ctx closes the session and unblocks a pending receive
//   - session: An active session, typically from AcceptSession
//
// Returns:
//   - nil after the sentinel was acknowledged
//   - ErrPeerClosed if the peer disconnected first, ErrSend or ErrReceive on
//     transport failure, or ctx's error
func RunLoop(ctx context.Context, session *Session) (err error) {
	stop := context.AfterFunc(ctx, func() {
		_ = session.Close()
	})

	defer func() {
		stop()
		if closeErr := session.Close(); closeErr != nil && err == nil {
			session.log.Debug("session close error", logger.Field{Key: "error", Value: closeErr.Error()})
		}

		session.record(ctx, err)
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("session %s: %w", session.ID(), ctx.Err())
			}

			return err
		}

		if wire.IsSentinel(msg) {
			session.log.Info("close sentinel received")
			return session.Send(wire.Acknowledgement)
		}

		session.log.Debug("message received", logger.Field{Key: "seq", Value: session.Messages()})

		if err := session.Send(wire.Response); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("session %s: %w", session.ID(), ctx.Err())
			}

			return err
		}
	}
}
