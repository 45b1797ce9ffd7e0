// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// ratelimit.go throttles traffic with x/time/rate token buckets: one bucket
// per device session, or per client IP on routes without a session. Buckets
// idle for longer than the TTL are swept every sweepEvery lookups. Replays
// flagged by IdempotencyValidator are never throttled.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	bucketTTL  = 10 * time.Minute
	sweepEvery = 5000
)

var rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected with 429, by bucket scope.",
}, []string{"scope"})

func init() {
	prometheus.MustRegister(rateLimited)
}

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyBySessionOrIP keys buckets by the :id session path parameter and falls
// back to the client IP. Keys are prefixed ("session:", "ip:") so the two
// namespaces never collide.
func KeyBySessionOrIP() keyFunc {
	return func(c *gin.Context) string {
		if sid := c.Param("id"); sid != "" {
			return "session:" + sid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. It is safe for concurrent
// use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// NewRateLimiter refills rps tokens per second into buckets of size burst
// (values <= 0 become 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		ttl:     bucketTTL,
		buckets: make(map[string]*bucket),
	}
}

// limiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay, which Handler lets through without spending a token.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// retryAfter is the whole number of seconds (at least 1) until lim holds a
// token again.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return 1
	}
	return max(1, int(math.Ceil(r.DelayFrom(now).Seconds())))
}

// Handler enforces the limits. A rejected request gets 429 with Retry-After
// and the shared error envelope (code "too_many_requests").
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := time.Now()
		key := rl.keyFn(c)
		lim := rl.limiter(key, now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		scope, _, found := strings.Cut(key, ":")
		if !found {
			scope = "other"
		}
		rateLimited.WithLabelValues(scope).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
