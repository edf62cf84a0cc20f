package middlewares

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterConfig sizes every bucket the limiter hands out.
type LimiterConfig struct {
	RPS     float64       // steady refill rate
	Burst   int           // bucket size
	IdleTTL time.Duration // buckets unused this long are dropped
}

// keyLimiter is one key's bucket plus when it was last used.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one in-memory token bucket per key: one client, one key,
// one bucket. State is per process; replicas limit independently.
type RateLimiter struct {
	conf    LimiterConfig
	mu      sync.Mutex
	buckets map[string]*keyLimiter
}

// NewRateLimiter starts a sweeper that drops idle buckets until ctx is done.
func NewRateLimiter(ctx context.Context, conf LimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		conf:    conf,
		buckets: make(map[string]*keyLimiter),
	}

	// sweep twice per TTL so a bucket outlives its TTL by at most half of it
	interval := conf.IdleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.sweep(now)
			}
		}
	}()

	return rl
}

// sweep drops buckets idle for longer than IdleTTL. A client that comes back
// later simply starts with a full bucket.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.buckets {
		if now.Sub(v.lastSeen) > rl.conf.IdleTTL {
			delete(rl.buckets, k)
		}
	}
}

// getLimiter returns key's bucket, creating a full one on first sight.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now // keeps the sweeper away
		return b.limiter
	}

	// starts with Burst tokens and refills at RPS per second
	lim := rate.NewLimiter(rate.Limit(rl.conf.RPS), rl.conf.Burst)
	rl.buckets[key] = &keyLimiter{limiter: lim, lastSeen: now}
	return lim
}

// KeySelector picks what a request is limited by (client IP, email, ...).
type KeySelector func(c *gin.Context) string

// ClientIPKey limits by client address. Behind a proxy this relies on gin's
// trusted-proxy settings for ClientIP to be meaningful.
func ClientIPKey(c *gin.Context) string { return "ip:" + c.ClientIP() }

// Middleware takes one token per request and answers 429 when the bucket for
// selectKey(c) is empty.
func (rl *RateLimiter) Middleware(selectKey KeySelector) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Allow never blocks; a request that does not fit is rejected outright
		if !rl.getLimiter(selectKey(c)).Allow() {
			c.Header("Retry-After", "1") // a token is back within a second at RPS >= 1
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Too many requests. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
