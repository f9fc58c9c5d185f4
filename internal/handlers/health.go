package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"stagesync/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db      *gorm.DB
	redis   redis.Cmdable
	breaker *services.CircuitBreaker
	version string
	logger  *logrus.Logger
}

// NewHealthHandler redis and breaker may be nil.
func NewHealthHandler(db *gorm.DB, rdb redis.Cmdable, breaker *services.CircuitBreaker, version string, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{db: db, redis: rdb, breaker: breaker, version: version, logger: logger}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 依赖状态
type ServiceInfo struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SystemInfo 进程信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

func (h *HealthHandler) checks(ctx context.Context) (map[string]ServiceInfo, bool) {
	out := make(map[string]ServiceInfo)
	healthy := true

	probe := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if err := fn(ctx); err != nil {
			healthy = false
			out[name] = ServiceInfo{Status: "unhealthy", Error: err.Error()}
			h.logger.WithError(err).Warnf("health check %s failed", name)
			return
		}
		out[name] = ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	}

	probe("database", func(ctx context.Context) error {
		sqlDB, err := h.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if h.redis != nil {
		probe("redis", func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
	}
	return out, healthy
}

// Health 依赖检查；CRM 熔断打开时为 degraded，仍返回 200
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	svcs, healthy := h.checks(ctx)
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Services:  svcs,
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}
	crm := h.breaker.State()
	resp.Services["crm"] = ServiceInfo{Status: crm.String()}

	code := http.StatusOK
	switch {
	case !healthy:
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case crm != services.BreakerClosed:
		resp.Status = "degraded"
	}
	c.JSON(code, resp)
}

// Ready 就绪检查，只看数据库和 Redis
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	svcs, healthy := h.checks(ctx)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "services": svcs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "services": svcs})
}

// RegisterHealthRoutes 注册到根路由
func RegisterHealthRoutes(r gin.IRoutes, handler *HealthHandler) {
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
}
