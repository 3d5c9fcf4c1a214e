package domain

import (
	"encoding/json"
	"time"
)

// CacheEntry is an immutable cached payload with its insertion time.
type CacheEntry[T any] struct {
	Key        string
	Payload    T
	InsertedAt time.Time
	TTL        time.Duration
}

func (e CacheEntry[T]) Valid(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}

func (e CacheEntry[T]) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// StoredEntry is the persistent envelope. Timestamp and TTL are milliseconds.
type StoredEntry struct {
	Timestamp int64           `json:"timestamp" db:"stored_at"`
	TTL       int64           `json:"ttl" db:"ttl_ms"`
	Value     json.RawMessage `json:"value" db:"value"`
}

func NewStoredEntry(insertedAt time.Time, ttl time.Duration, value json.RawMessage) StoredEntry {
	return StoredEntry{
		Timestamp: insertedAt.UnixMilli(),
		TTL:       ttl.Milliseconds(),
		Value:     value,
	}
}

func (s StoredEntry) InsertedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func (s StoredEntry) Lifetime() time.Duration {
	return time.Duration(s.TTL) * time.Millisecond
}

func (s StoredEntry) Valid(now time.Time) bool {
	return now.Sub(s.InsertedAt()) < s.Lifetime()
}

// Remaining is how long a store should keep the entry, never negative.
func (s StoredEntry) Remaining(now time.Time) time.Duration {
	left := s.InsertedAt().Add(s.Lifetime()).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
