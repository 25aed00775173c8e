// Package redisstore keeps session records in Redis so they outlive the
// listener process.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/sentinel-listener/history"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "sentinel:session"

// Store is a Redis-backed history.Store. Each record is a JSON string under
// "<prefix>:<session id>"; a sorted set at "<prefix>:index" orders session
// IDs by start time.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := redisstore.New(client, "", 24*time.Hour)
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Store.
//
// Parameters:
//   - client: The Redis client; the caller owns it
//   - prefix: Key prefix; empty means DefaultPrefix
//   - ttl: Lifetime of each record; zero or less keeps records until deleted
//
// Returns:
//   - A new *Store
func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	if ttl < 0 {
		ttl = 0
	}

	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + ":index"
}

// Save implements history.Recorder. The record and its index entry are
// written in one transaction.
func (s *Store) Save(ctx context.Context, rec history.Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("save record: empty session id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.SessionID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(rec.StartedAt.UnixNano()),
			Member: rec.SessionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.SessionID, err)
	}

	return nil
}

// Get implements history.Store.
func (s *Store) Get(ctx context.Context, sessionID string) (history.Record, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return history.Record{}, history.ErrNotFound
	}

	if err != nil {
		return history.Record{}, fmt.Errorf("redis get error: %w", err)
	}

	var rec history.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return history.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return rec, nil
}

// List implements history.Store. Index entries whose record has expired are
// pruned as a side effect.
func (s *Store) List(ctx context.Context) ([]history.Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	if len(ids) == 0 {
		return []history.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	records := make([]history.Record, 0, len(vals))
	var stale []any
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var rec history.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", ids[i], err)
		}

		records = append(records, rec)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}

	return records, nil
}

// Delete removes the record for sessionID. Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.ZRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", sessionID, err)
	}

	return nil
}

var _ history.Store = (*Store)(nil)
