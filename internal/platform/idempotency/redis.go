package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idemp:"

// RedisStore keeps records as JSON values whose key TTL matches ExpiresAt.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = ttlOrDefault(ttl)
	id := redisKeyPrefix + recordID(key)
	rec := pendingRecord(key, fingerprint, now, ttl)
	raw, err := json.Marshal(rec)
	if err != nil {
		return Reservation{}, err
	}

	// A held key may expire between SETNX and GET, so a miss on GET retries once.
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := s.rdb.SetNX(ctx, id, raw, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if claimed {
			return Reservation{State: ReservationStateNew, Record: rec}, nil
		}
		existing, found, err := s.get(ctx, id)
		if err != nil {
			return Reservation{}, err
		}
		if !found {
			continue
		}
		res, _, err := resolve(existing, true, fingerprint, time.Time{})
		return res, err
	}
	return Reservation{State: ReservationStatePending, Record: rec}, nil
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ttl = ttlOrDefault(ttl)
	id := redisKeyPrefix + recordID(key)

	existing, found, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	rec, err := prepareSave(existing, found, key, fingerprint)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec.completed(resp, now.UTC(), ttl))
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, id, raw, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, _ string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+recordID(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// CleanupExpired does nothing; Redis evicts keys when their TTL lapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) get(ctx context.Context, id string) (Record, bool, error) {
	raw, err := s.rdb.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return rec, true, nil
}
