package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/edgekit/captchad/utils"
)

// Status is the outcome of a verification attempt.
type Status int

const (
	// StatusNotFound covers absent, expired, and already-consumed tokens, and
	// by documented design also an unreachable backing store.
	StatusNotFound Status = iota
	// StatusSuccess means the response matched; the token is destroyed.
	StatusSuccess
	// StatusFailure means the response did not match and attempts remain.
	StatusFailure
	// StatusExhausted means the attempt cap was reached; the token is destroyed.
	StatusExhausted
)

// Result carries the verification outcome. AttemptsRemaining is meaningful
// only for StatusFailure.
type Result struct {
	Status            Status
	AttemptsRemaining int
}

// Verifier drives the token verification state machine. The load-increment-
// compare sequence runs inside a redis WATCH transaction so concurrent
// attempts against one token never double-count.
type Verifier struct {
	rdb         *redis.Client
	prefix      string
	maxAttempts int
}

// NewVerifier returns a verifier over tokens stored under prefix.
func NewVerifier(rdb *redis.Client, prefix string, maxAttempts int) *Verifier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Verifier{rdb: rdb, prefix: prefix, maxAttempts: maxAttempts}
}

// Verify consumes one attempt for token. Comparison against the stored code
// is case-insensitive. A match or a reached attempt cap destroys the token;
// the record's TTL is never refreshed on the failure path.
func (v *Verifier) Verify(ctx context.Context, token, response string) Result {
	const maxRetries = 4
	key := v.prefix + ":" + token

	for i := 0; i < maxRetries; i++ {
		var res Result

		err := v.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var rec TokenRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}

			if rec.Attempts >= v.maxAttempts {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				res = Result{Status: StatusExhausted}
				return nil
			}

			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return redis.Nil
			}

			rec.Attempts++

			if strings.EqualFold(response, rec.Code) {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				res = Result{Status: StatusSuccess}
				return nil
			}

			updated, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			// re-set with the remaining TTL so the deadline never moves
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			}); err != nil {
				return err
			}
			res = Result{Status: StatusFailure, AttemptsRemaining: v.maxAttempts - rec.Attempts}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				utils.Sugar.Warnf("verify token %s: %v", token, err)
			}
			// outages degrade to a miss, per the token store contract
			return Result{Status: StatusNotFound}
		}
		return res
	}
	return Result{Status: StatusNotFound}
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
