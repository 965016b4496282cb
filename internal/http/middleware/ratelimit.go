// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the in-process token-bucket limiters. Buckets live in
// a size-bounded LRU whose entries expire after a period of inactivity, so a
// flood of distinct client addresses cannot grow memory without limit.
//
// Two keyings are used by the router: per account (falling back to the
// client IP for anonymous calls) for the API as a whole, and per client IP
// and route for the public login, registration and invitation code
// endpoints, where four-digit codes would otherwise be guessable.
//
// Limits are per process; they are abuse control, not authorization.
// Idempotent replays detected by IdempotencyValidator are never limited.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultMaxBuckets = 50_000
	defaultBucketIdle = 10 * time.Minute
)

// keyFunc selects the bucket for a request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP buckets authenticated calls by account and anonymous ones by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIPAndRoute buckets by client IP and matched route regardless of
// identity, so guessing on one public endpoint does not exhaust another.
func KeyByIPAndRoute() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP() + ":" + routeLabel(c)
	}
}

// RateLimiter is a keyed set of token buckets. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1) per key. rps 0 admits burst requests per key
// until the bucket goes idle and is evicted.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, defaultMaxBuckets, defaultBucketIdle)
}

func newRateLimiter(rps float64, burst int, keyFn keyFunc, maxBuckets int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: expirable.NewLRU[string, *rate.Limiter](maxBuckets, nil, idle),
	}
}

// bucket returns the limiter for key, creating it when absent. Re-adding on
// every hit restarts the idle timer.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
	}
	rl.buckets.Add(key, lim)
	return lim
}

// IsRateBypass reports whether the request skips the limiter: replays of a
// completed idempotent request do.
func IsRateBypass(c *gin.Context) bool {
	return IsReplay(c)
}

// Handler enforces the limit. A rejected request gets 429 with Retry-After
// and the usual error envelope:
//
//	{"request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.bucket(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		countGuard(c, reasonRateLimited)
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       reasonRateLimited,
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the whole number of seconds until one token is refilled.
func (rl *RateLimiter) retryAfter() int {
	if rl.rps <= 0 || rl.rps == rate.Inf {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(rl.rps))))
}
