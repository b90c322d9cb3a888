// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides correlation ids, panic recovery and the request-scoped
// logger:
//
//   - RequestID() reuses X-Request-ID or generates a UUID and echoes it back.
//   - Recovery() turns panics into the JSON 500 envelope and logs the stack.
//   - LoggerFrom() returns the logger RedactingLogger attached to the request,
//     carrying request_id, operator and route, so handlers can log
//     lg.Info().Str("enquiry_id", id).Msg("...") without repeating them.
//
// Recommended order: RequestID, Operator, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or generates a UUID, stores it
// under "requestID" and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// scopeLogger builds the request-scoped logger and stores it under "logger".
func scopeLogger(c *gin.Context, route string) zerolog.Logger {
	v, _ := c.Get(requestIDKey)
	rid := asString(v)
	if rid == "" {
		rid = c.Writer.Header().Get(requestIDHeader)
	}
	if rid == "" {
		rid = c.GetHeader(requestIDHeader)
	}
	l := log.With().
		Str("request_id", rid).
		Str("operator", userIDFromCtx(c)).
		Str("method", c.Request.Method).
		Str("route", route).
		Logger()
	c.Set("logger", &l)
	return l
}

// Recovery logs a panic with its stack on the request-scoped logger and
// answers with the JSON 500 envelope, unless the response was already
// started (an event stream, say), in which case it only aborts.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			v, _ := c.Get(requestIDKey)
			rid := asString(v)
			ev := LoggerFrom(c).Error()
			if _, scoped := c.Get("logger"); !scoped {
				ev = ev.Str("request_id", rid)
			}
			ev.Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// RedactingLogger is not installed. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string. Used for context values.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max length, otherwise it truncates
// s to max bytes and appends an ellipsis. A max <= 0 disables truncation.
//
// Note: This operates on bytes (not runes) which is acceptable for logging.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
