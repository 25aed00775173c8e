package listener

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cyberinferno/sentinel-listener/history"
	"github.com/cyberinferno/sentinel-listener/logger"
	"github.com/cyberinferno/sentinel-listener/wire"
)

// DefaultHandshakeTimeout bounds the handshake when no timeout is configured.
const DefaultHandshakeTimeout = 10 * time.Second

type options struct {
	logger           logger.Logger
	clock            clockwork.Clock
	recorder         history.Recorder
	handshakeTimeout time.Duration
	idleTimeout      time.Duration
	maxMessageSize   int
}

func defaultOptions() options {
	return options{
		logger:           logger.Nop(),
		clock:            clockwork.NewRealClock(),
		handshakeTimeout: DefaultHandshakeTimeout,
		maxMessageSize:   wire.DefaultMaxFrameSize,
	}
}

// Option configures a Server or Session.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used to timestamp session records.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRecorder sets where finished sessions are reported. The default is none.
func WithRecorder(r history.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithHandshakeTimeout bounds the authentication exchange. Zero or less
// restores DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			d = DefaultHandshakeTimeout
		}
		o.handshakeTimeout = d
	}
}

// WithIdleTimeout bounds the wait for each message. Zero waits forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithMaxMessageSize bounds a single message body in bytes.
func WithMaxMessageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}
