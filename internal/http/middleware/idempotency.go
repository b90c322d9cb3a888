// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header the dashboard sends with every
// submit. The key is validated and stashed on the context for the
// coordinators, and when the submission ledger already holds a succeeded
// submission for (operator, collection, key) the request is flagged as a
// replay so the rate limiter lets it through; the coordinator then answers it
// from the ledger without calling the upstream.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the dashboard's submission key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultKeyMaxLen = 200
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the ledger already holds a succeeded submission
// for this operator, collection and key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil allows [A-Za-z0-9._~-:].
	Pattern *regexp.Regexp
	// ResourceOf names the collection a request submits to. Nil uses the
	// last static segment of the matched route.
	ResourceOf func(*gin.Context) string
}

// IdempotencyLookup reports whether a succeeded, unexpired submission exists.
// Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, operatorID, resource, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects malformed keys with 400, stashes valid ones
// and marks replays. Requests without the header pass untouched. A nil
// lookup disables replay detection.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultKeyMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	resourceOf := opts.ResourceOf
	if resourceOf == nil {
		resourceOf = routeResource
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			resource := resourceOf(c)
			exists, err := lookup(c.Request.Context(), userIDFromCtx(c), resource, key, time.Now().UTC())
			switch {
			case err != nil:
				lg := LoggerFrom(c)
				lg.Warn().Err(err).Str("resource", resource).Msg("idempotency lookup failed")
			case exists:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// userIDFromCtx returns the operator id set by Operator, or "anonymous".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}

// routeResource returns the last static segment of the matched route, e.g.
// "services" for /api/v1/services/:id.
func routeResource(c *gin.Context) string {
	segs := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "" && !strings.HasPrefix(segs[i], ":") && !strings.HasPrefix(segs[i], "*") {
			return segs[i]
		}
	}
	return ""
}
