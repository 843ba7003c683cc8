package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default backend for local runs and single-instance
// deployments. Records do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Record{}}
}

func (m *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := recordID(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.entries[id]
	res, claim, err := resolve(existing, found, fingerprint, now)
	if err != nil || !claim {
		return res, err
	}
	rec := pendingRecord(key, fingerprint, now, ttl)
	m.entries[id] = rec
	return Reservation{State: ReservationStateNew, Record: rec}, nil
}

func (m *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := recordID(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.entries[id]
	rec, err := prepareSave(existing, found, key, fingerprint)
	if err != nil {
		return err
	}
	m.entries[id] = rec.completed(resp, now.UTC(), ttl)
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key, _ string) error {
	m.mu.Lock()
	delete(m.entries, recordID(key))
	m.mu.Unlock()
	return nil
}

// CleanupExpired drops at most limit expired records; limit <= 0 means no bound.
func (m *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for id, rec := range m.entries {
		if limit > 0 && removed == limit {
			break
		}
		if rec.expired(now) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}
