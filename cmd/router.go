package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"userdash/docs"
	"userdash/pkg/config"
	"userdash/pkg/metrics"
	"userdash/pkg/middleware"
	"userdash/pkg/response"
)

const serviceName = "User Management API"

type pinger interface {
	Ping(ctx context.Context) error
}

type routeRegistrar interface {
	RegisterRoutes(router gin.IRouter)
}

type routerDeps struct {
	db      pinger
	metrics *metrics.Metrics
	users   routeRegistrar
	events  routeRegistrar
}

func newRouter(cfg *config.Server, log *slog.Logger, deps routerDeps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.SecureHeaders(cfg.IsProduction(), log),
		deps.metrics.Middleware(),
	)

	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsCfg))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	deps.users.RegisterRoutes(api)

	deps.events.RegisterRoutes(router)

	router.GET("/", info)
	router.GET("/health", health(deps.db))
	router.GET("/metrics", deps.metrics.Handler())
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

// info godoc
// @Summary      Service information
// @Tags         meta
// @Produce      json
// @Success      200 {object} response.APIResponse
// @Router       / [get]
func info(c *gin.Context) {
	response.SendAPIResponse(c, http.StatusOK, true, serviceName, gin.H{
		"name":    serviceName,
		"version": docs.SwaggerInfo.Version,
		"endpoints": gin.H{
			"users":   "/api/users",
			"stats":   "/api/users/stats",
			"feed":    "/ws/users",
			"health":  "/health",
			"metrics": "/metrics",
			"docs":    "/swagger/index.html",
		},
	})
}

// health godoc
// @Summary      Health check
// @Tags         meta
// @Produce      json
// @Success      200 {object} response.APIResponse
// @Failure      503 {object} response.APIResponse
// @Router       /health [get]
func health(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			response.SendError(c, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, "ok", gin.H{"status": "ok"})
	}
}
