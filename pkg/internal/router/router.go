// Package router 管理路由配置，把处理器绑定到 gin 引擎并装配中间件链.
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/metrics"
	"github.com/bizzlechizzle/aupat/pkg/middleware"
)

// APIPrefix 所有业务路由的前缀.
const APIPrefix = "/api/v1"

// SyncHandlers 同步相关处理器.
type SyncHandlers interface {
	Push() gin.HandlerFunc
	Pull() gin.HandlerFunc
	SyncLog() gin.HandlerFunc
}

// HealthHandlers 健康检查处理器.
type HealthHandlers interface {
	Health() gin.HandlerFunc
	HealthDB() gin.HandlerFunc
	HealthMQ() gin.HandlerFunc
	HealthS3() gin.HandlerFunc
	HealthArchive() gin.HandlerFunc
}

// SchedulerHandlers 调度器处理器.
type SchedulerHandlers interface {
	SchedulerJobs() gin.HandlerFunc
	SchedulerRunJob() gin.HandlerFunc
}

// LocationHandlers 地点处理器.
type LocationHandlers interface {
	CreateLocation() gin.HandlerFunc
	ListLocations() gin.HandlerFunc
	GetLocation() gin.HandlerFunc
}

// Handlers 由应用层注入的全部处理器，实现位于 pkg/internal/handle.
type Handlers interface {
	SyncHandlers
	HealthHandlers
	SchedulerHandlers
	LocationHandlers
}

// New 创建 gin 引擎，装配全局中间件、监控端点与 API 路由.
func New(cfg *configs.AppConfig, h Handlers) *gin.Engine {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.GinLoggerMiddleware(),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.CORSMiddleware(cfg.Server),
	)

	if cfg.Server.Gzip {
		opts := []gzip.Option{gzip.WithDecompressFn(gzip.DefaultDecompressHandle)}
		if cfg.Metrics.Path != "" {
			opts = append(opts, gzip.WithExcludedPaths([]string{cfg.Metrics.Path}))
		}

		engine.Use(gzip.Gzip(gzip.DefaultCompression, opts...))
	}

	metrics.Mount(cfg.Metrics, engine)

	api := engine.Group(APIPrefix,
		middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes()),
		middleware.DeviceAuthMiddleware(cfg.Auth),
		middleware.RateLimitMiddleware(cfg.RateLimit),
		middleware.CircuitBreakerMiddleware(cfg.CircuitBreaker),
	)

	RegisterHealthRoutes(api, h)
	RegisterSyncRoutes(api, h)
	RegisterLocationRoutes(api, h)
	RegisterSchedulerRoutes(api, h)

	return engine
}

// RegisterSyncRoutes 注册同步路由.
//
//	POST /sync/push
//	POST /sync/pull
//	GET  /sync/log
func RegisterSyncRoutes(g *gin.RouterGroup, h SyncHandlers) {
	syncRoutes := g.Group("/sync")
	{
		syncRoutes.POST("/push", h.Push())
		syncRoutes.POST("/pull", h.Pull())
		syncRoutes.GET("/log", h.SyncLog())
	}
}

// RegisterHealthRoutes 注册健康检查路由.
func RegisterHealthRoutes(g *gin.RouterGroup, h HealthHandlers) {
	g.GET("/health", h.Health())

	healthRoutes := g.Group("/health")
	{
		healthRoutes.GET("/db", h.HealthDB())
		healthRoutes.GET("/mq", h.HealthMQ())
		healthRoutes.GET("/s3", h.HealthS3())
		healthRoutes.GET("/archive", h.HealthArchive())
	}
}

// RegisterLocationRoutes 注册地点路由.
func RegisterLocationRoutes(g *gin.RouterGroup, h LocationHandlers) {
	g.POST("/locations", h.CreateLocation())
	g.GET("/locations", h.ListLocations())
	g.GET("/locations/:ref", h.GetLocation())
}

// RegisterSchedulerRoutes 注册调度器路由.
func RegisterSchedulerRoutes(g *gin.RouterGroup, h SchedulerHandlers) {
	g.GET("/scheduler/jobs", h.SchedulerJobs())
	g.POST("/scheduler/jobs/:name/run", h.SchedulerRunJob())
}
