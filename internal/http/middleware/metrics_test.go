package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.PATCH("/api/v1/enquiries/:id/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "active"})
	})

	route := httpReqs.WithLabelValues("PATCH", "/api/v1/enquiries/:id/status", "200")
	miss := httpReqs.WithLabelValues("GET", "/api/v1/unknown", "404")
	baseRoute, baseMiss := testutil.ToFloat64(route), testutil.ToFloat64(miss)
	seriesBefore := testutil.CollectAndCount(httpLat)

	for _, id := range []string{"e1", "e2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/enquiries/"+id+"/status", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("PATCH %s -> %d", id, w.Code)
		}
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))

	if got := testutil.ToFloat64(route); got != baseRoute+2 {
		t.Fatalf("both ids should share the route label: %v want %v", got, baseRoute+2)
	}
	if got := testutil.ToFloat64(miss); got != baseMiss+1 {
		t.Fatalf("unmatched path counter = %v want %v", got, baseMiss+1)
	}
	// one latency series per (method, route): the PATCH route and the raw 404 path
	if got := testutil.CollectAndCount(httpLat); got != seriesBefore+2 {
		t.Fatalf("latency series = %d want %d", got, seriesBefore+2)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("in-flight = %v after requests finished", got)
	}
}

func TestMetrics_StreamRoutesSkipHistograms(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics("/api/v1/events"))
	r.GET("/api/v1/events", func(c *gin.Context) {
		if got := testutil.ToFloat64(httpInflight); got != 0 {
			t.Errorf("stream counted as in-flight: %v", got)
		}
		c.String(http.StatusOK, ": ping\n\n")
	})

	counter := httpReqs.WithLabelValues("GET", "/api/v1/events", "200")
	base := testutil.ToFloat64(counter)
	latBefore := testutil.CollectAndCount(httpLat)
	sizeBefore := testutil.CollectAndCount(httpRespSize)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	if got := testutil.ToFloat64(counter); got != base+1 {
		t.Fatalf("stream request counter = %v; want %v", got, base+1)
	}
	if testutil.CollectAndCount(httpLat) != latBefore || testutil.CollectAndCount(httpRespSize) != sizeBefore {
		t.Fatalf("stream observed in histograms")
	}
}

func TestMetrics_EmptyBodySkipsSizeHistogram(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/api/v1/contacts/clear-error", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	sizeBefore := testutil.CollectAndCount(httpRespSize)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/contacts/clear-error", nil))

	if got := testutil.CollectAndCount(httpRespSize); got != sizeBefore {
		t.Fatalf("size series = %d want %d", got, sizeBefore)
	}
}
