package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/metrics"
	"github.com/guttosm/offline-sync/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// AdminPrefix is the route group of the offline admin API.
const AdminPrefix = "/_offline"

// RouterConfig holds router configuration options.
type RouterConfig struct {
	RateLimit         int
	RateBurst         int
	EnableIdempotency bool
	CORSOrigins       []string
	SwaggerUser       string
	SwaggerPass       string
	AdminTimeout      time.Duration
}

// DefaultRouterConfig returns the default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimit:         50,
		RateBurst:         100,
		EnableIdempotency: true,
		AdminTimeout:      30 * time.Second,
	}
}

// NewRouter creates the gateway router. Admin routes live under
// AdminPrefix; every other path is proxied through the engine.
func NewRouter(proxy *ProxyHandler, admin RouteGroup, healthHandler *HealthHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	configureGlobalMiddleware(router, &cfg)
	registerInfrastructureRoutes(router, healthHandler, &cfg)

	if admin != nil {
		group := router.Group(AdminPrefix)
		group.Use(middleware.Compression())
		if cfg.AdminTimeout > 0 {
			group.Use(middleware.TimeoutWithDuration(cfg.AdminTimeout))
		}
		admin.RegisterRoutes(group)
	}

	if proxy != nil {
		idem := middleware.IdempotencyConfig{}
		if cfg.EnableIdempotency {
			idem = middleware.DefaultIdempotencyConfig()
		}
		router.NoRoute(middleware.Idempotency(idem), proxy.Serve)
	}

	return router
}

// configureGlobalMiddleware sets up middleware applied to all routes.
func configureGlobalMiddleware(router *gin.Engine, cfg *RouterConfig) {
	allowedOrigins := cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	router.Use(middleware.CORS(allowedOrigins))

	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		metrics.PrometheusMiddleware(),
		middleware.RequestLogger(),
		middleware.ErrorHandler(),
	)

	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
		router.Use(limiter.RateLimit())
	}
}

// registerInfrastructureRoutes registers health, metrics, and documentation routes.
func registerInfrastructureRoutes(router *gin.Engine, healthHandler *HealthHandler, cfg *RouterConfig) {
	if healthHandler != nil {
		healthHandler.Register(router)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.SwaggerUser != "" && cfg.SwaggerPass != "" {
		authorized := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
			cfg.SwaggerUser: cfg.SwaggerPass,
		}))
		authorized.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	} else {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}
