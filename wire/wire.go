// Package wire implements the listener's framing and value codec. Every
// message travels as a 4-byte big-endian length followed by a JSON body.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// Sentinel is the payload that asks the server to end the session.
	Sentinel = "close"

	// Acknowledgement is sent back in reply to Sentinel.
	Acknowledgement = "Closing Connection"

	// Response is sent back in reply to every message that is not Sentinel.
	Response uint32 = 0xDEADBEEF

	// HeaderSize is the length of the frame size prefix in bytes.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds a frame body when no other limit is configured.
	DefaultMaxFrameSize = 32 << 20
)

var (
	// ErrFrameTooLarge is returned when a frame header announces a body larger
	// than the reader accepts, or a body is too large to be described by a header.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrMalformed is returned when a frame body is not a valid JSON value.
	ErrMalformed = errors.New("malformed message")
)

// Message is an opaque application value. Decoded numbers are json.Number so
// integers survive the round trip exactly.
type Message = any

// WriteFrame writes body prefixed with its big-endian length in a single Write.
//
// Parameters:
//   - w: The destination writer
//   - body: The frame body
//
// Returns:
//   - An error if body is too large or the write fails
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r. It returns io.EOF when r ends cleanly
// before a header and io.ErrUnexpectedEOF when r ends inside a frame.
//
// Parameters:
//   - r: The source reader
//   - maxSize: Largest accepted body in bytes; zero or less means DefaultMaxFrameSize
//
// Returns:
//   - The frame body
//   - An error if reading fails or the body exceeds maxSize
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, maxSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	return body, nil
}

// Codec encodes and decodes Messages as JSON frames over a stream.
// It is not safe for concurrent use.
type Codec struct {
	rw           io.ReadWriter
	maxFrameSize int
}

// NewCodec returns a Codec over rw that rejects frames larger than maxFrameSize.
//
// Parameters:
//   - rw: The underlying stream, typically a net.Conn
//   - maxFrameSize: Largest accepted frame body; zero or less means DefaultMaxFrameSize
//
// Returns:
//   - A new *Codec
func NewCodec(rw io.ReadWriter, maxFrameSize int) *Codec {
	return &Codec{rw: rw, maxFrameSize: maxFrameSize}
}

// Encode writes msg as one frame.
func (c *Codec) Encode(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return WriteFrame(c.rw, body)
}

// Decode reads one frame and decodes its body. Transport errors are returned
// unchanged so callers can tell io.EOF apart from other failures.
func (c *Codec) Decode() (Message, error) {
	body, err := ReadFrame(c.rw, c.maxFrameSize)
	if err != nil {
		return nil, err
	}

	return Unmarshal(body)
}

// Unmarshal decodes a single JSON value with numbers kept as json.Number.
func Unmarshal(body []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after value", ErrMalformed)
	}

	return msg, nil
}

// IsSentinel reports whether msg is exactly the string Sentinel.
func IsSentinel(msg Message) bool {
	s, ok := msg.(string)
	return ok && s == Sentinel
}

// IsResponse reports whether msg is the numeric value Response, whichever
// numeric type carries it.
func IsResponse(msg Message) bool {
	switch v := msg.(type) {
	case json.Number:
		n, err := v.Int64()
		return err == nil && n == int64(Response)
	case uint32:
		return v == Response
	case int64:
		return v == int64(Response)
	case uint64:
		return v == uint64(Response)
	case int:
		return int64(v) == int64(Response)
	case float64:
		return v == float64(Response)
	default:
		return false
	}
}
