// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/auth"
	"github.com/leadops/go-leads-backend/internal/cache"
	"github.com/leadops/go-leads-backend/internal/config"
	"github.com/leadops/go-leads-backend/internal/http/handlers"
	"github.com/leadops/go-leads-backend/internal/http/middleware"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
)

// verifierAdapter bridges auth.Verifier to the middleware.TokenVerifier
// contract (flat return values instead of the Identity struct).
type verifierAdapter struct {
	v *auth.Verifier
}

func (a verifierAdapter) Verify(token string) (string, string, error) {
	id, err := a.v.Verify(token)
	if err != nil {
		return "", "", err
	}
	return id.PrincipalID, id.Role, nil
}

// Deps carries the externally constructed dependencies the router wires into
// services and handlers. Registry and Bus are shared with the sweeper and the
// main goroutine, so they are built in cmd and injected here.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Registry *realtime.Registry
	Bus      *realtime.Bus
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity, idempotency
// and rate limiting, CORS and security headers, health and metrics endpoints,
// and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter + gzip
//  6. Metrics
//  7. Identity (bearer token, demo-header fallback)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per principal/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *services.NotificationService {
	r.HandleMethodNotAllowed = true

	db := deps.DB

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Identity: bearer token when a secret is configured, demo-header
	// fallback otherwise (local tooling, tests)
	verifier := auth.NewVerifier(cfg.AuthSecret)
	r.Use(middleware.Auth(verifierAdapter{v: verifier}, false))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, principalID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, principalID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per principal/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPrincipalOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-User-Role", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
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
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-User-Role", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (optional)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache/bus
	notifSvc := services.NewNotificationService(db, deps.Cache, deps.Bus)
	notifSvc.HistoryMax = cfg.Notify.HistoryMax
	notifSvc.HistoryTTL = cfg.Notify.HistoryTTL
	transferSvc := services.NewTransferService(db, notifSvc, deps.Bus)
	leadSvc := services.NewLeadService(db, deps.Bus)
	dueSvc := services.NewDueItemService(db)

	h := handlers.New(leadSvc, transferSvc, notifSvc, dueSvc, deps.Registry, cfg.IdempotencyTTL)

	// Realtime stream sits outside the versioned API prefix.
	r.GET("/ws", h.Websocket)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Leads
		api.POST("/leads", h.CreateLead)
		api.GET("/leads", h.ListLeads)
		api.GET("/leads/:id", h.GetLead)
		api.PUT("/leads/:id/status", h.UpdateLeadStatus)

		// Transfers
		api.POST("/transfers", h.ProposeTransfer)
		api.GET("/transfers/inbox", h.TransferInbox)
		api.GET("/transfers/outbox", h.TransferOutbox)
		api.POST("/transfers/:id/accept", h.AcceptTransfer)
		api.POST("/transfers/:id/reject", h.RejectTransfer)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/recent", h.RecentNotifications)
		api.GET("/notifications/unread-count", h.UnreadNotificationCount)
		api.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)

		// Due items
		api.POST("/due-items", h.CreateDueItem)
		api.GET("/due-items", h.ListDueItems)
		api.PUT("/due-items/:id/complete", h.CompleteDueItem)
		api.PUT("/due-items/:id/reschedule", h.RescheduleDueItem)
	}

	return notifSvc
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
