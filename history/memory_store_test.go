package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, startedAt time.Time) Record {
	return Record{
		SessionID:  id,
		RemoteAddr: "127.0.0.1:40000",
		StartedAt:  startedAt,
		EndedAt:    startedAt.Add(time.Second),
		Messages:   2,
		Outcome:    OutcomeClosed,
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("a", now)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, record("a", now), got)
	assert.Equal(t, time.Second, got.Duration())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	s := NewMemoryStore(0, 0)
	ctx := context.Background()
	now := time.Now()

	rec := record("a", now)
	require.NoError(t, s.Save(ctx, rec))

	rec.Outcome = OutcomePeerClosed
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, OutcomePeerClosed, got.Outcome)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RejectsEmptyID(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)

	err := s.Save(context.Background(), Record{})
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestMemoryStore_ListOrdersByStart(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("late", base.Add(2*time.Minute))))
	require.NoError(t, s.Save(ctx, record("early", base)))
	require.NoError(t, s.Save(ctx, record("middle", base.Add(time.Minute))))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "early", records[0].SessionID)
	assert.Equal(t, "middle", records[1].SessionID)
	assert.Equal(t, "late", records[2].SessionID)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(20*time.Millisecond, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("a", time.Now())))
	time.Sleep(50 * time.Millisecond)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, record("a", time.Now())), context.Canceled)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
