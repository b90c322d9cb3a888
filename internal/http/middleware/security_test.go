package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// secured serves path through SecurityHeaders, optionally behind a step that
// presets response headers the way RequestID and CORS do in the router.
func secured(opt SecurityOptions, preset map[string]string, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		for k, v := range preset {
			c.Header(k, v)
		}
		c.Next()
	})
	r.Use(SecurityHeaders(opt))
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := secured(SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/api/v1/enquiries", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if h.Get(k) != v {
			t.Fatalf("%s = %q; want %q", k, h.Get(k), v)
		}
	}
	for _, k := range []string{"Cache-Control", "Permissions-Policy", "Strict-Transport-Security", "Access-Control-Expose-Headers"} {
		if h.Get(k) != "" {
			t.Fatalf("%s should be unset, got %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := []struct {
		name   string
		preset map[string]string
		want   string
	}{
		{"no request id", nil, ""},
		{"fresh", map[string]string{"X-Request-ID": "rid-1"}, "X-Request-ID"},
		{"appended", map[string]string{"X-Request-ID": "rid-2", "Access-Control-Expose-Headers": "Retry-After"}, "Retry-After, X-Request-ID"},
		{"already listed", map[string]string{"X-Request-ID": "rid-3", "Access-Control-Expose-Headers": "X-Request-ID, Retry-After"}, "X-Request-ID, Retry-After"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := secured(SecurityOptions{}, tc.preset, httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_NoStoreScopedToAPI(t *testing.T) {
	opt := SecurityOptions{NoStore: true, NoStorePrefix: "/api/v1", EnablePolicy: true}

	api := secured(opt, nil, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))
	if api.Get("Cache-Control") != "no-store" || api.Get("Pragma") != "no-cache" || api.Get("Expires") != "0" {
		t.Fatalf("api cache headers: %v", api)
	}
	if api.Get("X-Permitted-Cross-Domain-Policies") != "none" || api.Get("Permissions-Policy") == "" {
		t.Fatalf("policy headers: %v", api)
	}

	docs := secured(opt, nil, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if docs.Get("Cache-Control") != "" {
		t.Fatalf("swagger should stay cacheable, got %q", docs.Get("Cache-Control"))
	}

	all := secured(SecurityOptions{NoStore: true}, nil, httptest.NewRequest(http.MethodGet, "/health", nil))
	if all.Get("Cache-Control") != "no-store" {
		t.Fatalf("empty prefix should cover every path, got %q", all.Get("Cache-Control"))
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	plain := func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api/v1/enquiries", nil) }
	viaTLS := func() *http.Request {
		r := plain()
		r.TLS = &tls.ConnectionState{}
		return r
	}
	viaProxy := func() *http.Request {
		r := plain()
		r.Header.Set("X-Forwarded-Proto", "HTTPS")
		return r
	}

	cases := []struct {
		name string
		opt  SecurityOptions
		req  *http.Request
		want string
	}{
		{"disabled", SecurityOptions{}, viaTLS(), ""},
		{"plain http", SecurityOptions{EnableHSTS: true}, plain(), ""},
		{"tls with max age", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, viaTLS(), "max-age=86400; includeSubDomains; preload"},
		{"proxy default max age", SecurityOptions{EnableHSTS: true}, viaProxy(), "max-age=15552000; includeSubDomains; preload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := secured(tc.opt, nil, tc.req).Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q; want %q", got, tc.want)
			}
		})
	}
}
