package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTokenStore(client, "test"), mr
}

func TestTokenStoreRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), time.Minute))

	got, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, ok = s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestTokenStoreMiss(t *testing.T) {
	s, _ := newTestStore(t)

	_, ok := s.Get(context.Background(), "nope")
	assert.False(t, ok)

	// deleting an absent key is not an error
	assert.NoError(t, s.Delete(context.Background(), "nope"))
}

func TestTokenStoreExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), 2*time.Second))
	_, ok := s.Get(ctx, "k1")
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	_, ok = s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestTokenStoreTTLRemaining(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "timed", []byte("v"), time.Minute))
	d, ok := s.TTLRemaining(ctx, "timed")
	require.True(t, ok)
	assert.Greater(t, d, 50*time.Second)

	require.NoError(t, s.Put(ctx, "forever", []byte("v"), 0))
	d, ok = s.TTLRemaining(ctx, "forever")
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), d)

	_, ok = s.TTLRemaining(ctx, "absent")
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok = s.TTLRemaining(ctx, "timed")
	assert.False(t, ok)
}

func TestTokenStoreUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	assert.ErrorIs(t, s.Put(ctx, "k1", []byte("v1"), time.Minute), ErrStoreUnavailable)
	assert.ErrorIs(t, s.Delete(ctx, "k1"), ErrStoreUnavailable)

	// reads degrade to a miss
	_, ok := s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestTokenStoreKeysAreNamespaced(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a := NewTokenStore(client, "a")
	b := NewTokenStore(client, "b")
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, "k", []byte("from-a"), time.Minute))
	_, ok := b.Get(ctx, "k")
	assert.False(t, ok)
}
