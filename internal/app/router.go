package app

import (
	"github.com/guttosm/offline-sync/config"
	"github.com/guttosm/offline-sync/internal/http"
)

// RouterComponents holds router-related components.
type RouterComponents struct {
	Proxy         *http.ProxyHandler
	Admin         *http.AdminHandler
	HealthHandler *http.HealthHandler
	Config        http.RouterConfig
}

// InitializeRouter creates the HTTP handlers and router configuration.
func InitializeRouter(services *ServiceComponents, cfg config.Config) *RouterComponents {
	healthHandler := http.NewHealthHandler()
	healthHandler.RegisterChecker("storage", services.Engine.Store())
	healthHandler.RegisterCircuitBreaker("remote_api", services.Breaker)
	healthHandler.RegisterStatus("connectivity", func() string {
		if services.Engine.Monitor.Online() {
			return "online"
		}
		return "offline"
	})

	routerCfg := http.DefaultRouterConfig()
	routerCfg.RateLimit = cfg.Server.RateLimit
	routerCfg.RateBurst = cfg.Server.RateBurst
	routerCfg.CORSOrigins = cfg.Server.CORSOrigins
	routerCfg.SwaggerUser = cfg.Server.SwaggerUser
	routerCfg.SwaggerPass = cfg.Server.SwaggerPass

	return &RouterComponents{
		Proxy:         http.NewProxyHandler(services.Engine),
		Admin:         http.NewAdminHandler(services.Engine),
		HealthHandler: healthHandler,
		Config:        routerCfg,
	}
}
