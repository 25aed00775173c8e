package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologLogger(t *testing.T) {
	t.Run("entries carry service, level and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := Wrap(NewZerolog(&buf, "listener", zerolog.DebugLevel))

		l.Info("session accepted", Field{Key: "remote", Value: "127.0.0.1:5000"})

		entry := decodeLine(t, &buf)
		assert.Equal(t, "listener", entry["service"])
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "session accepted", entry["message"])
		assert.Equal(t, "127.0.0.1:5000", entry["remote"])
		assert.Contains(t, entry, "time")
	})

	t.Run("entries below the level are dropped", func(t *testing.T) {
		var buf bytes.Buffer
		l := Wrap(NewZerolog(&buf, "listener", zerolog.WarnLevel))

		l.Debug("hidden")
		l.Info("hidden")
		assert.Zero(t, buf.Len())

		l.Warn("shown")
		assert.NotZero(t, buf.Len())
	})

	t.Run("With attaches fields without changing the parent", func(t *testing.T) {
		var buf bytes.Buffer
		parent := Wrap(NewZerolog(&buf, "listener", zerolog.InfoLevel))
		child := parent.With(Field{Key: "session", Value: "abc"})

		child.Error("boom")
		assert.Equal(t, "abc", decodeLine(t, &buf)["session"])

		buf.Reset()
		parent.Error("boom")
		assert.NotContains(t, decodeLine(t, &buf), "session")
	})
}

func TestNew(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		_, err := New(Options{Format: "xml"})
		assert.Error(t, err)
	})

	t.Run("writes to a daily file in the configured directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		l, err := New(Options{Service: "listener", Level: "info", Dir: dir})
		require.NoError(t, err)

		l.Info("hello")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close(), "Close is idempotent")

		matches, err := filepath.Glob(filepath.Join(dir, "listener_*.log"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"hello"`)
	})

	t.Run("rejects an unusable directory", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		_, err := New(Options{Service: "listener", Dir: filepath.Join(blocker, "logs")})
		assert.Error(t, err)
	})

	t.Run("Nop discards and closes cleanly", func(t *testing.T) {
		l := Nop()
		l.Error("ignored")
		assert.NoError(t, l.Close())
	})
}
