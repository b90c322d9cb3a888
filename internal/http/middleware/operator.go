// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file identifies the dashboard operator behind a request. The bearer
// token is forwarded to the upstream API through the request context, and the
// operator id keys rate limiting, logging and the submission ledger.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edulead/enquirydesk/internal/apiclient"
)

const (
	// HeaderOperatorID optionally names the operator; the upstream remains
	// the authority on what the token may do.
	HeaderOperatorID = "X-User-ID"

	ctxKeyUserID    = "userID"
	ctxKeyHasBearer = "auth.bearer"
)

// Operator stores the bearer token (if any) on the request context and sets
// "userID" from X-User-ID. Requests without an id are keyed as "anonymous".
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearer(c.GetHeader("Authorization")); tok != "" {
			c.Request = c.Request.WithContext(apiclient.WithToken(c.Request.Context(), tok))
			c.Set(ctxKeyHasBearer, true)
		}
		uid := strings.TrimSpace(c.GetHeader(HeaderOperatorID))
		if uid == "" {
			uid = "anonymous"
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// HasBearer reports whether the request carried a bearer token.
func HasBearer(c *gin.Context) bool {
	return c.GetBool(ctxKeyHasBearer)
}

// OperatorID returns the id set by Operator.
func OperatorID(c *gin.Context) string {
	return userIDFromCtx(c)
}

func bearer(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
