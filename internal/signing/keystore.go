package signing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeySet is a snapshot of the signing keys.  CurrentID is empty when
// no key has been generated yet (or the current one expired).
// Previous is empty when there is no key in its grace period.
type KeySet struct {
	CurrentID string
	Current   string
	Previous  string
}

// KeyStore persists signing keys with expiry.  Swap must promote the
// current key (if any) to the previous slot and install the new key
// as current in one atomic step.
type KeyStore interface {
	Current(ctx context.Context) (KeySet, error)
	Swap(ctx context.Context, newID, newKey string, ttl, prevTTL time.Duration) error
}

// ErrSwapContention is returned when the atomic swap kept losing to
// concurrent writers.
var ErrSwapContention = errors.New("signing: key swap contention")

const swapRetries = 5

// RedisKeyStore keeps keys in Redis under a common prefix:
//
//	<prefix>current_key_id -> id of the current key
//	<prefix>key:<id>       -> current key material
//	<prefix>previous       -> key material of the last rotated-out key
type RedisKeyStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisKeyStore returns a store using prefix for every key it writes.
func NewRedisKeyStore(rdb *redis.Client, prefix string) *RedisKeyStore {
	if prefix == "" {
		prefix = "hmac:"
	}
	return &RedisKeyStore{rdb: rdb, prefix: prefix}
}

func (s *RedisKeyStore) idKey() string                { return s.prefix + "current_key_id" }
func (s *RedisKeyStore) materialKey(id string) string { return s.prefix + "key:" + id }
func (s *RedisKeyStore) previousKey() string          { return s.prefix + "previous" }

func (s *RedisKeyStore) Current(ctx context.Context) (KeySet, error) {
	var ks KeySet
	id, err := s.rdb.Get(ctx, s.idKey()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return ks, fmt.Errorf("read current key id: %w", err)
	default:
		key, err := s.rdb.Get(ctx, s.materialKey(id)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return ks, fmt.Errorf("read current key: %w", err)
		}
		if key != "" {
			ks.CurrentID, ks.Current = id, key
		}
	}
	prev, err := s.rdb.Get(ctx, s.previousKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ks, fmt.Errorf("read previous key: %w", err)
	}
	ks.Previous = prev
	return ks, nil
}

// Swap runs a WATCH/MULTI/EXEC transaction on the current key id so
// two concurrent rotations cannot both demote the same key.
func (s *RedisKeyStore) Swap(ctx context.Context, newID, newKey string, ttl, prevTTL time.Duration) error {
	txf := func(tx *redis.Tx) error {
		curID, err := tx.Get(ctx, s.idKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		var curKey string
		if curID != "" {
			curKey, err = tx.Get(ctx, s.materialKey(curID)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if curKey != "" {
				p.Set(ctx, s.previousKey(), curKey, prevTTL)
			}
			p.Set(ctx, s.materialKey(newID), newKey, ttl)
			p.Set(ctx, s.idKey(), newID, ttl)
			return nil
		})
		return err
	}
	for i := 0; i < swapRetries; i++ {
		err := s.rdb.Watch(ctx, txf, s.idKey())
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("swap signing key: %w", err)
	}
	return ErrSwapContention
}

type memEntry struct {
	value   string
	expires time.Time
}

func (e memEntry) live(now time.Time) bool { return e.value != "" && now.Before(e.expires) }

// MemoryKeyStore is a process-local KeyStore for tests and single-node
// development.  Expiry is evaluated against the injected clock.
type MemoryKeyStore struct {
	mu        sync.Mutex
	now       func() time.Time
	currentID memEntry
	current   memEntry
	previous  memEntry
}

// NewMemoryKeyStore returns an empty store.  A nil clock means time.Now.
func NewMemoryKeyStore(now func() time.Time) *MemoryKeyStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryKeyStore{now: now}
}

func (s *MemoryKeyStore) Current(_ context.Context) (KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var ks KeySet
	if s.currentID.live(now) && s.current.live(now) {
		ks.CurrentID, ks.Current = s.currentID.value, s.current.value
	}
	if s.previous.live(now) {
		ks.Previous = s.previous.value
	}
	return ks, nil
}

func (s *MemoryKeyStore) Swap(_ context.Context, newID, newKey string, ttl, prevTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.currentID.live(now) && s.current.live(now) {
		s.previous = memEntry{value: s.current.value, expires: now.Add(prevTTL)}
	}
	s.currentID = memEntry{value: newID, expires: now.Add(ttl)}
	s.current = memEntry{value: newKey, expires: now.Add(ttl)}
	return nil
}
