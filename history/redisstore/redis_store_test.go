package redisstore

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/cyberinferno/sentinel-listener/history"
)

var (
	testRedisURL   string
	redisContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	redisContainer = container

	testRedisURL, err = container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := redisContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}

	os.Exit(code)
}

func setupTestClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	opts, err := redis.ParseURL(testRedisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.FlushAll(context.Background()).Err())

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func record(id string, startedAt time.Time) history.Record {
	return history.Record{
		SessionID:  id,
		RemoteAddr: "127.0.0.1:40000",
		StartedAt:  startedAt,
		EndedAt:    startedAt.Add(time.Second),
		Messages:   3,
		Outcome:    history.OutcomeClosed,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	client := setupTestClient(t)
	s := New(client, "", time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("a", now)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.SessionID)
	assert.True(t, now.Equal(got.StartedAt))
	assert.Equal(t, 3, got.Messages)
	assert.Equal(t, history.OutcomeClosed, got.Outcome)

	ttl, err := client.TTL(ctx, DefaultPrefix+":a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStore_GetMissing(t *testing.T) {
	s := New(setupTestClient(t), "test", time.Minute)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestStore_ListOrdersByStartAndPrunes(t *testing.T) {
	client := setupTestClient(t)
	s := New(client, "test", time.Minute)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("late", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, record("early", base)))

	// Simulate expiry of one record while its index entry remains.
	require.NoError(t, client.Del(ctx, "test:late").Err())

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "early", records[0].SessionID)

	members, err := client.ZRange(ctx, "test:index", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, members)
}

func TestStore_Delete(t *testing.T) {
	s := New(setupTestClient(t), "test", 0)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("a", time.Now())))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, history.ErrNotFound)

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
