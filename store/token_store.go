package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/utils"
)

const opTimeout = 2 * time.Second

// ErrStoreUnavailable marks write failures against the backing store.
var ErrStoreUnavailable = errors.New("store: backing store unavailable")

// ChallengeRecord is the state persisted per issued challenge id. Media is
// never stored; it is regenerated from the code and customization on fetch.
type ChallengeRecord struct {
	Code          string                `json:"code"`
	Customization captcha.Customization `json:"customization"`
}

// TokenRecord is the verification state persisted per issued token.
type TokenRecord struct {
	Code          string                `json:"code"`
	Type          string                `json:"type"`
	Customization captcha.Customization `json:"customization"`
	Attempts      int                   `json:"attempts"`
}

// TokenStore is a thin TTL'd key/value layer over redis. Get deliberately
// degrades store errors to a miss, so callers cannot distinguish an outage
// from a real absence; Put and Delete surface failures instead.
type TokenStore struct {
	rdb    *redis.Client
	prefix string
}

// NewTokenStore returns a store namespaced under prefix.
func NewTokenStore(rdb *redis.Client, prefix string) *TokenStore {
	return &TokenStore{rdb: rdb, prefix: prefix}
}

func (s *TokenStore) key(k string) string {
	return s.prefix + ":" + k
}

// Put stores value under key. A zero ttl stores without expiry.
func (s *TokenStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the stored value, or ok=false when the key is absent, expired,
// or the store is unreachable.
func (s *TokenStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			utils.Sugar.Warnf("token store get %s: %v", key, err)
		}
		return nil, false
	}
	return v, true
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TTLRemaining reports the time left before key expires. Keys stored without
// expiry report a zero duration with ok=true.
func (s *TokenStore) TTLRemaining(ctx context.Context, key string) (time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	d, err := s.rdb.TTL(ctx, s.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			utils.Sugar.Warnf("token store ttl %s: %v", key, err)
		}
		return 0, false
	}
	if d < 0 {
		// go-redis passes the TTL sentinels through raw: -1 for keys
		// without expiry, -2 for absent keys
		return 0, d == -1
	}
	return d, true
}
