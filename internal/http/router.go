// Package httpapi wires the HTTP transport (Gin) to the conversation service,
// the realtime hub, middleware, and route handlers. It centralizes
// cross-cutting concerns: tracing, correlation IDs, redacted logging, panic
// recovery, metrics, compression, CORS, security headers, idempotency, and
// rate limiting.
//
// @title       FAQ Chatbot API
// @version     1.0
// @description Device sessions talking to a rule-based FAQ bot.
// @BasePath    /api/v1
package httpapi

import (
	"context"
	"errors"
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

	"github.com/tbourn/go-faq-chatbot/docs"
	"github.com/tbourn/go-faq-chatbot/internal/config"
	"github.com/tbourn/go-faq-chatbot/internal/http/handlers"
	"github.com/tbourn/go-faq-chatbot/internal/http/middleware"
	"github.com/tbourn/go-faq-chatbot/internal/realtime"
	"github.com/tbourn/go-faq-chatbot/internal/repo"
)

// Headers browsers may read from API responses.
var exposedHeaders = []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the session API under cfg.APIBasePath. hub may be nil, in
// which case the event stream endpoint answers 404.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (user names in paths are masked)
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before the rate limiter so replays bypass it)
//  8. Rate limiter (per session/IP)
//  9. CORS and security headers
//  10. Gzip, except for the websocket endpoint
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc handlers.ConversationService, hub *realtime.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		MaskParams:  []string{"name"},
		SkipPaths:   []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, sessionID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposedHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
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
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposedHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		CacheControl:  "no-cache",
		EnablePolicy:  true,
		ExposeHeaders: []string{"ETag", "Idempotency-Replayed"},
	}))

	// Hijacked websocket connections must not be wrapped by the gzip writer.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/events$`}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var h *handlers.Handlers
	if hub != nil {
		h = handlers.New(svc, hub, realtime.Upgrader(cfg.CORS.AllowedOrigins))
	} else {
		h = handlers.New(svc, nil, nil)
	}
	h.Mount(groupWithPrefix(r, cfg.APIBasePath))
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body reads
// to error.
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
