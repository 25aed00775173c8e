// Package logger provides the structured logging interface used across the
// listener, backed by zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger writes leveled, structured log entries. Loggers may be derived with
// With for session-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close releases the output owned by the logger, if any. It is safe to
	// call multiple times.
	Close() error
}

// Options selects where and how a Logger writes.
type Options struct {
	// Service is added as the "service" field to every entry.
	Service string
	// Level is a zerolog level name ("debug", "info", ...). Empty means info.
	Level string
	// Format is "json" or "console". Empty means json.
	Format string
	// Dir, when set, receives entries in daily files named
	// {service}_{date}.log in addition to stdout.
	Dir string
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger zerolog.Logger
	file   *DailyFileWriter
}

// New builds a Logger from opts.
//
// Parameters:
//   - opts: Output settings; see Options
//
// Returns:
//   - The Logger
//   - An error if the level or format is unknown or the log directory cannot be used
func New(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}

		level = parsed
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(opts.Format) {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	var file *DailyFileWriter
	if opts.Dir != "" {
		w, err := NewDailyFileWriter(opts.Service, opts.Dir, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create file writer: %w", err)
		}

		file = w
		out = zerolog.MultiLevelWriter(out, w)
	}

	return &zerologLogger{
		logger: NewZerolog(out, opts.Service, level),
		file:   file,
	}, nil
}

// NewZerolog returns the zerolog.Logger that New wraps: service name and
// timestamp on every entry, filtered by level.
func NewZerolog(w io.Writer, service string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(level)
}

// Wrap adapts an existing zerolog.Logger. The returned Logger owns nothing.
func Wrap(l zerolog.Logger) Logger {
	return &zerologLogger{logger: l}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger. Derived loggers share the parent's output but do
// not own it.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

// Close implements Logger.
func (z *zerologLogger) Close() error {
	if z.file == nil {
		return nil
	}

	err := z.file.Close()
	z.file = nil
	return err
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
