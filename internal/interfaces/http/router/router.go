// Package router assembles the gin engine: middleware stack, public chat
// routes, admin routes, and the operational endpoints.
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appservice "github.com/dmirchev92/server-maystorfix-sub010/internal/application/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/interfaces/http/handlers"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/interfaces/http/middleware"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// Options carries everything the router needs.
type Options struct {
	Service     *appservice.ChatAccessService
	Limiter     domainsvc.RateLimitService
	Health      map[string]handlers.Pinger
	AdminSecret []byte
	Config      *config.Config
	Logger      logger.Logger
}

// New builds the engine.
func New(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		middleware.RequestContext(),
		middleware.Recovery(opts.Logger),
		middleware.AccessLog(opts.Logger),
		cors.Default(),
	)

	chatHandler := handlers.NewChatHandler(opts.Service)
	adminHandler := handlers.NewAdminHandler(opts.Service)
	healthHandler := handlers.NewHealthHandler(opts.Health)

	engine.GET("/health/live", healthHandler.Live)
	engine.GET("/health/ready", healthHandler.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Config.Server.EnablePprof {
		pprof.Register(engine)
	}

	api := engine.Group("/api/v1")

	chat := api.Group("/chat")
	{
		providers := chat.Group("/providers/:provider_id")
		providers.POST("/init", chatHandler.Initialize)
		providers.GET("/url", chatHandler.ChatURL)
		providers.GET("/token", chatHandler.CurrentToken)
		providers.POST("/regenerate", chatHandler.Regenerate)

		// the validate endpoint is what chat links hit; it carries the
		// coarse per-IP guard on top of the token semantics
		chat.POST("/validate",
			middleware.RateLimit(opts.Limiter, constants.RateLimitScopeValidate, opts.Logger),
			chatHandler.Validate)
		chat.GET("/sessions/:session_id", chatHandler.Session)
	}

	admin := api.Group("/admin", middleware.AdminAuth(opts.AdminSecret, &opts.Config.AdminAuth))
	{
		admin.GET("/providers/:provider_id/stats", adminHandler.Stats)
		admin.POST("/cleanup", adminHandler.Cleanup)
	}

	return engine
}
