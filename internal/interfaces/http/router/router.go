// Package router 提供 HTTP 路由配置
package router

import (
	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/interfaces/http/handler"
	"sitegen-ai-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Site    *handler.SiteHandler
	Credits *handler.CreditsHandler
}

// Router HTTP 路由器
type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	limiter *admission.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不做接口级限流
func New(cfg *config.Config, handlers Handlers, limiter *admission.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:  engine,
		cfg:     cfg,
		limiter: limiter,
	}

	r.setupMiddleware()
	r.setupRoutes(handlers)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(h Handlers) {
	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		Enabled:   r.cfg.Security.Auth.Enabled,
		Secret:    r.cfg.Security.Auth.Secret,
		Issuer:    r.cfg.Security.Auth.Issuer,
		SkipPaths: middleware.DefaultSkipPaths,
	}))
	if r.cfg.Security.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(r.limiter))
	}

	RegisterV1Routes(v1, h.Site, h.Credits)
}
