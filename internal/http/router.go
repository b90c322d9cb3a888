// Package httpapi wires the dashboard HTTP surface (Gin) to the resource
// coordinators, the notification bell and the browser event stream. It owns
// the middleware chain: tracing, correlation ids, operator identity,
// redacted access logs, recovery, metrics, submission keys, rate limiting,
// CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/edulead/enquirydesk/internal/config"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/http/handlers"
	"github.com/edulead/enquirydesk/internal/http/middleware"
	"github.com/edulead/enquirydesk/internal/realtime"
	"github.com/edulead/enquirydesk/internal/repo"
	"github.com/edulead/enquirydesk/internal/services"
)

// maxBody caps request bodies; services upload one image per submission.
const maxBody = 8 << 20

// Deps are the components the routes dispatch to.
type Deps struct {
	Coordinators services.Coordinators
	Stores       services.Stores
	Hub          *realtime.Hub
	// LedgerDB backs the replay check of the idempotency middleware. Nil
	// disables the check.
	LedgerDB *gorm.DB
}

// RegisterRoutes installs the middleware chain and every route on r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. Operator (bearer forwarding, operator id)
//  4. RedactingLogger (needs request id and operator)
//  5. Recovery
//  6. Body size limit
//  7. Metrics
//  8. Idempotency validator (before the limiter so replays bypass it)
//  9. Rate limiter
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath
	eventsRoute := joinPath(apiBase, "/events")

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Operator())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBody))

	r.Use(middleware.Metrics(eventsRoute))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		ledgerLookup(deps.LedgerDB),
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperatorOrIP()).
		Exempt(eventsRoute, "/health", "/metrics")
	r.Use(rl.Handler())

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID",
		middleware.HeaderOperatorID, middleware.HeaderIdempotencyKey,
	}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header, for health checks and tests.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: false, // must stay false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		NoStorePrefix: apiBase,
		EnablePolicy:  true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": subscribers(deps.Hub)})
	})

	api := groupWithPrefix(r, apiBase)
	mountResources(api, deps.Coordinators, cfg)
	if deps.Coordinators.Enquiries != nil {
		handlers.NewNotifications(deps.Coordinators.Enquiries).Mount(api.Group("/enquiries/notifications"))
	}
	if deps.Hub != nil {
		events := handlers.NewEvents(deps.Hub, deps.Stores.Snapshot, cfg.Events.Heartbeat)
		api.GET("/events", events.Stream)
	}
}

func mountResources(api *gin.RouterGroup, co services.Coordinators, cfg config.Config) {
	opts := handlers.ResourceOptions{DefaultLimit: cfg.DefaultPageLimit, MaxLimit: cfg.MaxPageLimit}
	users := opts
	users.RequireAuth = true

	if co.Users != nil {
		handlers.NewResource[domain.User](co.Users, users).Mount(api.Group("/" + services.Users.Name))
	}
	if co.Enquiries != nil {
		handlers.NewResource[domain.Enquiry](co.Enquiries, opts).Mount(api.Group("/" + services.Enquiries.Name))
	}
	if co.FollowUps != nil {
		handlers.NewResource[domain.FollowUp](co.FollowUps, opts).Mount(api.Group("/" + services.FollowUps.Name))
	}
	if co.Contacts != nil {
		handlers.NewResource[domain.Contact](co.Contacts, opts).Mount(api.Group("/" + services.Contacts.Name))
	}
	if co.Services != nil {
		handlers.NewResource[domain.Service](co.Services, opts).Mount(api.Group("/" + services.Services.Name))
	}
}

// ledgerLookup reports a replay when a succeeded, unexpired ledger row exists
// for the key. Lookup failures never block the request.
func ledgerLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, operatorID, resource, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, operatorID, resource, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return rec.State == domain.SubmissionSucceeded, nil
	}
}

func subscribers(h *realtime.Hub) int {
	if h == nil {
		return 0
	}
	return h.Subscribers()
}

// limitBody caps the request body with http.MaxBytesReader; reads past the
// cap fail downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath joins a base path and a route the way gin does for groups.
func joinPath(base, route string) string {
	if base == "" || base == "/" {
		return route
	}
	return base + route
}
