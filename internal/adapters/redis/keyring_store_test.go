package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/webfront-auth/internal/data/cryptoutil"
	"github.com/target/webfront-auth/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestKeyRingStore_PushAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewKeyRingStore(client, "test:keyring", 2)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoKeys)

	var ids []string
	for i := 0; i < 3; i++ {
		k, err := cryptoutil.GenerateKey()
		require.NoError(t, err)
		require.NoError(t, store.Push(ctx, k))
		ids = append(ids, k.ID)
	}

	keys, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2, "the oldest key falls out of the grace window")
	assert.Equal(t, ids[2], keys[0].ID)
	assert.Equal(t, ids[1], keys[1].ID)

	n, err := client.LLen(ctx, "test:keyring").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestKeyRingStore_EnsureKey(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewKeyRingStore(client, "test:ensure", 3)
	ctx := context.Background()

	first, err := store.EnsureKey(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := store.EnsureKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, again[0].ID, "an existing ring is not reseeded")

	ring, err := cryptoutil.NewKeyRing(again...)
	require.NoError(t, err)
	_, err = ring.Seal(cryptoutil.PurposeToken, []byte("x"))
	require.NoError(t, err)
}

func TestKeyRingStore_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.LPush(ctx, "test:corrupt", "not-a-key").Err())

	_, err := NewKeyRingStore(client, "test:corrupt", 2).Load(ctx)
	require.ErrorContains(t, err, "parse stored key")
}
