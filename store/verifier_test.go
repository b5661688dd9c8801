package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) (*Verifier, *TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewVerifier(client, "token", 3), NewTokenStore(client, "token"), mr
}

func putToken(t *testing.T, s *TokenStore, token, code string, ttl time.Duration) {
	t.Helper()
	raw, err := json.Marshal(TokenRecord{Code: code, Type: "image"})
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), token, raw, ttl))
}

func TestVerifySuccessIsCaseInsensitive(t *testing.T) {
	v, s, _ := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", time.Minute)

	res := v.Verify(context.Background(), "tok", "ab12cd")
	assert.Equal(t, StatusSuccess, res.Status)

	// success consumes the token
	res = v.Verify(context.Background(), "tok", "ab12cd")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyFailureCountdown(t *testing.T) {
	v, s, _ := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", time.Minute)
	ctx := context.Background()

	for _, want := range []int{2, 1, 0} {
		res := v.Verify(ctx, "tok", "WRONG!")
		require.Equal(t, StatusFailure, res.Status)
		assert.Equal(t, want, res.AttemptsRemaining)
	}

	// the cap is already reached; even the right answer no longer helps
	res := v.Verify(ctx, "tok", "AB12CD")
	assert.Equal(t, StatusExhausted, res.Status)

	res = v.Verify(ctx, "tok", "AB12CD")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyUnknownToken(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	res := v.Verify(context.Background(), "missing", "AB12CD")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyExpiredToken(t *testing.T) {
	v, s, mr := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", 2*time.Second)

	mr.FastForward(3 * time.Second)

	res := v.Verify(context.Background(), "tok", "AB12CD")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyFailureDoesNotRefreshTTL(t *testing.T) {
	v, s, mr := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", time.Minute)

	mr.FastForward(30 * time.Second)

	res := v.Verify(context.Background(), "tok", "WRONG!")
	require.Equal(t, StatusFailure, res.Status)

	remaining, ok := s.TTLRemaining(context.Background(), "tok")
	require.True(t, ok)
	assert.LessOrEqual(t, remaining, 30*time.Second)
	assert.Greater(t, remaining, time.Duration(0))
}

func TestVerifyStoreOutageDegradesToMiss(t *testing.T) {
	v, s, mr := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", time.Minute)
	mr.Close()

	res := v.Verify(context.Background(), "tok", "AB12CD")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestVerifyConcurrentAttemptsNeverOvercount(t *testing.T) {
	v, s, _ := newTestVerifier(t)
	putToken(t, s, "tok", "AB12CD", time.Minute)

	const workers = 50
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.Verify(context.Background(), "tok", "WRONG!")
		}(i)
	}
	wg.Wait()

	var failures int
	for _, res := range results {
		require.NotEqual(t, StatusSuccess, res.Status)
		if res.Status == StatusFailure {
			failures++
		}
	}
	// the WATCH transaction makes attempts strictly sequential
	assert.LessOrEqual(t, failures, 3)

	if raw, ok := s.Get(context.Background(), "tok"); ok {
		var rec TokenRecord
		require.NoError(t, json.Unmarshal(raw, &rec))
		assert.LessOrEqual(t, rec.Attempts, 3)
		assert.Equal(t, failures, rec.Attempts)
	}
}
