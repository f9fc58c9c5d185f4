package handlers

import (
	"stagesync/internal/config"
	"stagesync/internal/metrics"
	"stagesync/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Handlers 路由所需的全部 handler
type Handlers struct {
	Health      *HealthHandler
	Automation  *AutomationHandler
	Integration *IntegrationHandler
	OAuth       *OAuthHandler
	Message     *MessageHandler
}

// NewRouter 组装中间件和 /api/v1 路由
func NewRouter(cfg *config.Config, h *Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	r.Use(middleware.RateLimitMiddleware(cfg))

	if h.Health != nil {
		RegisterHealthRoutes(r, h.Health)
	}
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	public := r.Group("/api/v1")
	protected := r.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(cfg))

	RegisterOAuthRoutes(protected, public, h.OAuth)
	RegisterAutomationRoutes(protected, h.Automation)
	RegisterIntegrationRoutes(protected, h.Integration)
	RegisterMessageRoutes(protected, h.Message)
	return r
}
