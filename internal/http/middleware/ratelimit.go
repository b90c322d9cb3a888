// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the inbound token-bucket limiter. Buckets are keyed by
// operator when the dashboard names one, and by client IP for anonymous
// traffic (public enquiry and contact forms). Long-lived routes such as the
// event stream can be exempted, and replays of completed submissions skip
// limiting when IdempotencyValidator marks them.
//
// The limiter is process-local and guards the upstream API from a runaway
// dashboard; it is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByOperatorOrIP keys named operators as "operator:<id>" and everyone else
// (including "anonymous") as "ip:<addr>".
func KeyByOperatorOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := userIDFromCtx(c); id != "anonymous" {
			return "operator:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Idle buckets are evicted
// opportunistically. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	skip  map[string]struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		skip:     map[string]struct{}{},
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Exempt skips limiting for the given registered routes (gin full paths).
func (rl *RateLimiter) Exempt(routes ...string) *RateLimiter {
	for _, p := range routes {
		rl.skip[p] = struct{}{}
	}
	return rl
}

// getVisitor returns the bucket for key, creating it if absent. Every 5000
// lookups idle buckets are swept first, so an expired bucket is replaced
// rather than refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// retryAfter is the whole number of seconds until one token is available.
func (rl *RateLimiter) retryAfter() string {
	if rl.rps <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(rl.rps)))))
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed submission.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. Denied requests get 429 with Retry-After and
// the usual {request_id, code, message} body.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.skip[c.FullPath()]; ok || IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(routeResource(c)).Inc()
		c.Header("Retry-After", rl.retryAfter())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
