package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

type RouterDependencies struct {
	AuthHandler     *AuthHandler
	TemplateHandler *TemplateHandler
	ContextHandler  *ContextHandler
	SessionHandler  *SessionHandler
	StatsHandler    *StatsHandler
	TokenService    *services.TokenService
	DB              *sqlx.DB
	Redis           *redis.Client
	Outbox          domain.DeliveryOutbox
	StartTime       time.Time
	RateLimit       int
	RateWindow      time.Duration
}

func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Device-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", healthHandler(deps))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var limiter []gin.HandlerFunc
	if deps.Redis != nil && deps.RateLimit > 0 {
		window := deps.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		limiter = append(limiter, middleware.RateLimiterMiddleware(deps.Redis, deps.RateLimit, window))
	}

	apiV1 := router.Group("/api/v1")

	public := apiV1.Group("", limiter...)
	deps.AuthHandler.RegisterRoutes(public)

	protected := apiV1.Group("", append([]gin.HandlerFunc{middleware.AuthMiddleware(deps.TokenService)}, limiter...)...)
	{
		deps.AuthHandler.RegisterProtectedRoutes(protected)
		deps.TemplateHandler.RegisterRoutes(protected)
		deps.ContextHandler.RegisterRoutes(protected)
		deps.SessionHandler.RegisterRoutes(protected)
		deps.StatsHandler.RegisterRoutes(protected)
	}

	return router
}

// healthHandler reports 503 when Postgres, or Redis if configured, is down.
// The outbox backlog is informational.
func healthHandler(deps RouterDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		statusCode := http.StatusOK

		dbStatus := "connected"
		if deps.DB == nil || deps.DB.PingContext(ctx) != nil {
			dbStatus = "unreachable"
			statusCode = http.StatusServiceUnavailable
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "connected"
			if deps.Redis.Ping(ctx).Err() != nil {
				redisStatus = "unreachable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		body := gin.H{
			"status":   "ok",
			"database": dbStatus,
			"redis":    redisStatus,
			"uptime":   time.Since(deps.StartTime).String(),
		}
		if deps.Outbox != nil {
			if pending, err := deps.Outbox.Pending(ctx); err == nil {
				body["outbox_pending"] = pending
			}
		}
		if statusCode != http.StatusOK {
			body["status"] = "degraded"
		}

		c.JSON(statusCode, body)
	}
}
