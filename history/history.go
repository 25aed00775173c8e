// Package history keeps a record of every session the listener served: who
// connected, how many messages were exchanged and how the session ended.
package history

import (
	"context"
	"errors"
	"time"
)

// Outcome describes how a session ended.
type Outcome string

const (
	// OutcomeClosed means the peer sent the sentinel and was acknowledged.
	OutcomeClosed Outcome = "closed"
	// OutcomePeerClosed means the peer disconnected without the sentinel.
	OutcomePeerClosed Outcome = "peer_closed"
	// OutcomeCancelled means the server stopped the session.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means a transport error ended the session.
	OutcomeFailed Outcome = "failed"
)

// ErrNotFound is returned by Store.Get for unknown session IDs.
var ErrNotFound = errors.New("session record not found")

// Record summarises one finished session.
type Record struct {
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Messages   int       `json:"messages"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the session was active.
func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Recorder receives a Record when a session ends.
type Recorder interface {
	// Save stores rec, replacing any record with the same SessionID.
	Save(ctx context.Context, rec Record) error
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder

	// Get returns the record for sessionID or ErrNotFound.
	Get(ctx context.Context, sessionID string) (Record, error)

	// List returns all retained records ordered by StartedAt.
	List(ctx context.Context) ([]Record, error)
}
