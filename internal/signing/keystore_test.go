package signing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisKeyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisKeyStore(rdb, "test:hmac:"), mr
}

func TestRedisKeyStoreEmpty(t *testing.T) {
	store, _ := newRedisStore(t)
	ks, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KeySet{}, ks)
}

func TestRedisKeyStoreSwapPromotesCurrent(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Swap(ctx, "k1", "aaaa", time.Hour, 2*time.Hour))
	ks, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeySet{CurrentID: "k1", Current: "aaaa"}, ks)

	require.NoError(t, store.Swap(ctx, "k2", "bbbb", time.Hour, 2*time.Hour))
	ks, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeySet{CurrentID: "k2", Current: "bbbb", Previous: "aaaa"}, ks)

	assert.Equal(t, time.Hour, mr.TTL("test:hmac:current_key_id"))
	assert.Equal(t, 2*time.Hour, mr.TTL("test:hmac:previous"))
}

func TestRedisKeyStoreExpiredCurrentKeepsPrevious(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Swap(ctx, "k1", "aaaa", time.Hour, 2*time.Hour))
	require.NoError(t, store.Swap(ctx, "k2", "bbbb", time.Hour, 2*time.Hour))

	mr.FastForward(time.Hour + time.Second)
	ks, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Empty(t, ks.CurrentID)
	assert.Equal(t, "aaaa", ks.Previous)

	require.NoError(t, store.Swap(ctx, "k3", "cccc", time.Hour, 2*time.Hour))
	ks, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeySet{CurrentID: "k3", Current: "cccc", Previous: "aaaa"}, ks)
}

func TestServiceOnRedisStoreRotationGrace(t *testing.T) {
	store, _ := newRedisStore(t)
	svc, err := New(store)
	require.NoError(t, err)
	ctx := context.Background()

	sig, err := svc.Sign(ctx, samplePayload())
	require.NoError(t, err)
	require.NoError(t, svc.RotateKey(ctx))

	ok, err := svc.Verify(ctx, samplePayload(), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}
