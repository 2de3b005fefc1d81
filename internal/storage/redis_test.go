package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKVFromClient(client, "test:")
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

func TestKeyValueStores(t *testing.T) {
	redisKV, _ := newTestRedisKV(t)
	stores := map[string]KeyValueStore{
		"memory": NewMemoryKV(),
		"redis":  redisKV,
	}

	for name, kv := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := testContext(t)

			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, kv.Set(ctx, KeyAppID, "755792571"))
			v, err := kv.Get(ctx, KeyAppID)
			require.NoError(t, err)
			assert.Equal(t, "755792571", v)

			require.NoError(t, kv.Set(ctx, KeyAppID, ""))
			v, err = kv.Get(ctx, KeyAppID)
			require.NoError(t, err)
			assert.Equal(t, "", v)

			require.NoError(t, kv.Delete(ctx, KeyAppID))
			_, err = kv.Get(ctx, KeyAppID)
			assert.ErrorIs(t, err, ErrKeyNotFound)

			assert.NoError(t, kv.Delete(ctx, "never-set"))
		})
	}
}

func TestRedisKVUsesPrefix(t *testing.T) {
	kv, mr := newTestRedisKV(t)
	ctx := testContext(t)

	require.NoError(t, kv.Set(ctx, KeyEscrowAddress, "ESCROW"))
	got, err := mr.Get("test:" + KeyEscrowAddress)
	require.NoError(t, err)
	assert.Equal(t, "ESCROW", got)
}

func TestRedisKVConnectionError(t *testing.T) {
	kv, mr := newTestRedisKV(t)
	mr.Close()

	_, err := kv.Get(testContext(t), KeyAppID)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}
