package redis

// Package redis provides Redis-based adapters for the web front.

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/webfront-auth/internal/data/cryptoutil"
)

// ErrNoKeys is returned by Load when the key list is empty.
var ErrNoKeys = errors.New("no keys in redis key ring")

// KeyRingStore shares the envelope keys between instances. The list at key
// holds "id:secret" entries, newest first, trimmed to maxKeys.
type KeyRingStore struct {
	client  redis.UniversalClient
	key     string
	maxKeys int
}

// NewKeyRingStore creates a key ring store. maxKeys is the active key plus the grace keys.
func NewKeyRingStore(client redis.UniversalClient, key string, maxKeys int) *KeyRingStore {
	if key == "" {
		key = "webfront:keyring"
	}
	if maxKeys < 1 {
		maxKeys = 1
	}
	return &KeyRingStore{client: client, key: key, maxKeys: maxKeys}
}

// Load returns the keys, newest first.
func (s *KeyRingStore) Load(ctx context.Context) ([]cryptoutil.Key, error) {
	entries, err := s.client.LRange(ctx, s.key, 0, int64(s.maxKeys-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoKeys
	}
	keys := make([]cryptoutil.Key, 0, len(entries))
	for _, entry := range entries {
		k, err := cryptoutil.ParseKey(entry)
		if err != nil {
			return nil, fmt.Errorf("parse stored key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Push makes k the active key and drops keys beyond the grace window.
func (s *KeyRingStore) Push(ctx context.Context, k cryptoutil.Key) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, k.String())
		pipe.LTrim(ctx, s.key, 0, int64(s.maxKeys-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push key: %w", err)
	}
	return nil
}

// EnsureKey pushes a generated key when the ring is empty and returns the keys.
func (s *KeyRingStore) EnsureKey(ctx context.Context) ([]cryptoutil.Key, error) {
	keys, err := s.Load(ctx)
	if !errors.Is(err, ErrNoKeys) {
		return keys, err
	}
	k, err := cryptoutil.GenerateKey()
	if err != nil {
		return nil, err
	}
	// SETNX-style guard: only the first instance seeds the list.
	ok, err := s.client.SetNX(ctx, s.key+":seed", k.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		if err := s.Push(ctx, k); err != nil {
			return nil, err
		}
	}
	return s.Load(ctx)
}
