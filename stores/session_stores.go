package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/wsauthz"
)

// RistrettoSessionStore caches sessions in process with a TTL.
type RistrettoSessionStore struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewRistrettoSessionStore(maxSessions int64, ttl time.Duration) (*RistrettoSessionStore, error) {
	if maxSessions <= 0 {
		maxSessions = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxSessions * 10,
		MaxCost:     maxSessions,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &RistrettoSessionStore{cache: cache, ttl: ttl}, nil
}

func (s *RistrettoSessionStore) SaveSession(ctx context.Context, rec wsauthz.SessionRecord) error {
	var ok bool
	if s.ttl > 0 {
		ok = s.cache.SetWithTTL(rec.ID, rec, 1, s.ttl)
	} else {
		ok = s.cache.Set(rec.ID, rec, 1)
	}
	if !ok {
		return fmt.Errorf("session %s dropped by cache", rec.ID)
	}
	s.cache.Wait()
	return nil
}

func (s *RistrettoSessionStore) GetSession(ctx context.Context, id string) (wsauthz.SessionRecord, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return wsauthz.SessionRecord{}, fmt.Errorf("session %s: %w", id, wsauthz.ErrSessionNotFound)
	}
	rec, ok := v.(wsauthz.SessionRecord)
	if !ok {
		return wsauthz.SessionRecord{}, fmt.Errorf("session %s: unexpected cache value %T", id, v)
	}
	return rec, nil
}

func (s *RistrettoSessionStore) DeleteSession(ctx context.Context, id string) error {
	s.cache.Del(id)
	return nil
}

func (s *RistrettoSessionStore) Close() { s.cache.Close() }

// RedisSessionStore keeps sessions as JSON strings under wsauthz:session:{id}.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, prefix: "wsauthz:session:"}
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, rec wsauthz.SessionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+rec.ID, payload, s.ttl).Err()
}

func (s *RedisSessionStore) GetSession(ctx context.Context, id string) (wsauthz.SessionRecord, error) {
	var rec wsauthz.SessionRecord
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, fmt.Errorf("session %s: %w", id, wsauthz.ErrSessionNotFound)
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}
