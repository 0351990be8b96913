package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached read-model record.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
	OutOfDate bool            `json:"out_of_date,omitempty"`
	Version   uint64          `json:"version"`
}

// Fresh reports whether the entry can be served without refetching.
func (e Entry) Fresh(now time.Time, staleTime time.Duration) bool {
	if e.Stale || e.OutOfDate {
		return false
	}
	return now.Sub(e.FetchedAt) < staleTime
}

// Store persists entries. Implementations must replace records atomically.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore keeps entries in an LRU.
type MemoryStore struct {
	lru *LRU[Entry]
}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{lru: NewLRU[Entry](capacity)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := s.lru.Get(key)
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	// copy the payload so callers cannot mutate a stored record
	e.Value = append(json.RawMessage(nil), e.Value...)
	s.lru.Put(key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	return s.lru.Keys(prefix), nil
}
