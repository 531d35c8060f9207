package api

import (
	"ferry/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Range", "X-Owner-ID"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on session creation only; its cleanup goroutine ends
	// with the server.
	initLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Server.RegisterOnShutdown(initLimiter.Stop)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Upload sessions
	uploads := e.Group("/api/uploads", RequireOwner())
	uploads.POST("", handler.HandleInitialize, initLimiter.Middleware())
	uploads.PUT("/:id/chunks/:index", handler.HandleChunk)
	uploads.POST("/:id/complete", handler.HandleFinalize)
	uploads.GET("/:id", handler.HandleStatus)
	uploads.DELETE("/:id", handler.HandleCancel)

	// Download
	e.GET("/d/:id", handler.HandleDownload, RequireOwner())

	return e
}
