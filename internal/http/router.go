// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and
// rate limiting.
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

	_ "github.com/tbourn/legis-office-backend/docs"
	"github.com/tbourn/legis-office-backend/internal/auth"
	"github.com/tbourn/legis-office-backend/internal/cache"
	"github.com/tbourn/legis-office-backend/internal/config"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/http/handlers"
	"github.com/tbourn/legis-office-backend/internal/http/middleware"
	"github.com/tbourn/legis-office-backend/internal/services"
)

// Services bundles the application services the router mounts. Build it
// with NewServices; the process entrypoint also uses Accounts for the
// bootstrap admin and Idempotency for purging.
type Services struct {
	Invitations *services.InvitationService
	Accounts    *services.AccountService
	Topics      *services.TopicService
	Sequences   *services.SequenceService
	Idempotency *services.IdempotencyService
	Tokens      *auth.JWTManager
}

// NewServices constructs every service over db from configuration.
func NewServices(db *gorm.DB, cfg config.Config) *Services {
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTTTL)
	inv := services.NewInvitationService(db, cfg.Invite)
	topics := services.NewTopicService(db, cache.NewTopics(cfg.TopicCache.Size, cfg.TopicCache.TTL))
	return &Services{
		Invitations: inv,
		Accounts:    services.NewAccountService(db, inv, tokens, cfg.Auth.BcryptCost),
		Topics:      topics,
		Sequences:   services.NewSequenceService(db, topics, cfg.FallbackAbbreviation),
		Idempotency: services.NewIdempotencyService(db, cfg.IdempotencyTTL),
		Tokens:      tokens,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), compression, CORS
// and security headers, health, metrics and docs endpoints, and then mounts
// the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger or RedactingLogger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip, CORS and security headers
//
// Inside the API group:
//  8. Authenticate: decode the bearer token when present
//  9. Idempotency validator (before rate limiting to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay), stricter on public
//     credential and code endpoints
func RegisterRoutes(r *gin.Engine, svc *Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logs
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskQueryParams: []string{"email"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics("/metrics", "/health"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression, CORS posture, security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	useCORS(r, cfg.CORS)

	base := cfg.APIBasePath
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{joinPath(base, "/auth"), joinPath(base, "/invitations"), joinPath(base, "/me")},
		EnablePolicy:    true,
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

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Invitations, svc.Accounts, svc.Topics, svc.Sequences, svc.Idempotency)

	api := groupWithPrefix(r, base)

	// 8) Bearer identity
	api.Use(middleware.Authenticate(svc.Tokens))

	// 9) Idempotency validation (before rate limiting)
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string) (bool, error) {
			rec, err := svc.Idempotency.Lookup(ctx, userID, scope, key)
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))

	// 10) Token-bucket rate limiters
	api.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())
	strict := middleware.NewRateLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst, middleware.KeyByIPAndRoute()).Handler()

	// Public credential and code endpoints
	api.POST("/auth/login", strict, h.Login)
	api.POST("/auth/register", strict, h.Register)
	api.GET("/invitations/lookup", strict, h.LookupInvitation)
	api.POST("/invitations/verify", strict, h.VerifyInvitation)
	api.POST("/invitations/use", strict, h.UseInvitation)

	authed := api.Group("", middleware.RequireAuth())
	{
		authed.GET("/me", h.Me)

		// Invitation administration
		inv := authed.Group("/invitations", middleware.RequireRole(domain.RoleAdmin, domain.RoleStaff))
		inv.POST("", h.IssueInvitation)
		inv.GET("", h.ListInvitations)
		inv.PATCH("", h.ConsumeInvitation)
		inv.DELETE("", h.DeleteInvitation)

		// Topics
		authed.GET("/topics", h.ListTopics)
		admin := authed.Group("/topics", middleware.RequireRole(domain.RoleAdmin))
		admin.POST("", h.CreateTopic)
		admin.PUT("/:id", h.UpdateTopic)

		// Expressions and petitions share handlers; each kind gets static
		// routes so the path never has to be parsed for it.
		for _, kind := range []domain.Kind{domain.KindExpression, domain.KindPetition} {
			g := authed.Group("/"+string(kind), middleware.RequireRole(domain.RoleAdmin, domain.RoleStaff))
			g.GET("/gaps", h.FindGaps(kind))
			g.POST("/allocate", h.AllocateGap(kind))
			g.POST("", h.CreateItem(kind))
			g.GET("", h.ListItems(kind))
			g.GET("/:id", h.GetItem(kind))
			g.PATCH("/:id/status", h.AdvanceStatus(kind))
		}
	}
}

// useCORS installs the CORS posture: allow any origin without credentials
// when no allowlist is configured, otherwise echo allowlisted origins.
func useCORS(r *gin.Engine, c config.CORSConfig) {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(c.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
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
		AllowOrigins:     c.AllowedOrigins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
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

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
