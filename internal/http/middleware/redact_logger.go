// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the gateway's access log. Enquiry and
// contact traffic is full of personal data, so bodies are never logged and
// query strings and headers are scrubbed before they reach a log line:
//
//   - UUIDs, email addresses and phone numbers are replaced by markers
//   - Authorization, Cookie and Set-Cookie (plus configured headers) are masked
//
// RedactingLogger also attaches the request-scoped logger returned by
// LoggerFrom.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger. MaskHeaders are matched
// case-insensitively and fully replaced with "[REDACTED]".
type RedactOptions struct {
	MaskHeaders []string
}

// UUIDs go first so the phone pattern cannot eat their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger logs one line per request at info, warn (4xx) or error
// (5xx or gin errors) level.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		query := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		lg := scopeLogger(c, route)

		c.Next()

		status := c.Writer.Status()

		ev := lg.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", redact(c.Errors.String()))
			}
		case status >= 400:
			ev = lg.Warn()
		}
		ev.
			Str("path", route).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
