package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/edgekit/captchad/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	limiters   = map[string]*rateLimiter{}
	limitersMu sync.Mutex
)

// RateLimitByIP applies a token bucket per client IP.
func RateLimitByIP(perMinute int) gin.HandlerFunc {
	return rateLimit("ip:", perMinute, func(ctx *gin.Context) string {
		return ctx.ClientIP()
	})
}

// RateLimitByAPIKey applies a token bucket per authenticated credential. It
// must run after APIKeyRequired; unauthenticated requests fall back to IP.
func RateLimitByAPIKey(perMinute int) gin.HandlerFunc {
	return rateLimit("key:", perMinute, func(ctx *gin.Context) string {
		if id := ctx.GetString(ContextKeyIDKey); id != "" {
			return id
		}
		return ctx.ClientIP()
	})
}

func rateLimit(prefix string, perMinute int, keyOf func(*gin.Context) string) gin.HandlerFunc {
	if perMinute < 1 {
		perMinute = 1
	}
	r := rate.Every(time.Minute / time.Duration(perMinute))
	burst := maxInt(perMinute/2, 1)

	return func(ctx *gin.Context) {
		limiter := getLimiter(prefix+keyOf(ctx), r, burst)

		limiter.mu.Lock()
		allowed := limiter.limiter.Allow()
		limiter.mu.Unlock()

		if !allowed {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func getLimiter(key string, limit rate.Limit, burst int) *rateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	cleanupExpiredLimitersLocked()

	if limiter, ok := limiters[key]; ok {
		limiter.expires = time.Now().Add(5 * time.Minute)
		return limiter
	}

	limiter := &rateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		expires: time.Now().Add(5 * time.Minute),
	}
	limiters[key] = limiter
	return limiter
}

func cleanupExpiredLimitersLocked() {
	now := time.Now()
	for key, limiter := range limiters {
		if now.After(limiter.expires) {
			delete(limiters, key)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
