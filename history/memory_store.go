package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store. Records expire after the configured
// TTL and are swept by go-cache's janitor.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates a MemoryStore.
//
// Parameters:
//   - ttl: How long records are kept; zero or less keeps them forever
//   - cleanupInterval: How often expired records are removed
//
// Returns:
//   - A new *MemoryStore
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	return &MemoryStore{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Save implements Recorder.
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if rec.SessionID == "" {
		return fmt.Errorf("save record: empty session id")
	}

	s.cache.Set(rec.SessionID, rec, s.ttl)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	val, found := s.cache.Get(sessionID)
	if !found {
		return Record{}, ErrNotFound
	}

	rec, ok := val.(Record)
	if !ok {
		return Record{}, fmt.Errorf("unexpected type in store for session %s", sessionID)
	}

	return rec, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := s.cache.Items()
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.Object.(Record); ok {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

// Len returns the number of unexpired records.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
