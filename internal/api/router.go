// Package api assembles the HTTP surface of the print gateway.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/api/handlers"
	"github.com/orrn/remoteprint/internal/api/middleware"
	"github.com/orrn/remoteprint/internal/logger"
)

// Handlers groups everything the router mounts. Auth and DB are required;
// a nil handler leaves its routes unregistered.
type Handlers struct {
	Auth     *middleware.AuthMiddleware
	Jobs     *handlers.JobHandler
	Printers *handlers.PrinterHandler
	Webhooks *handlers.WebhookHandler
	Archives *handlers.ArchiveHandler
	Settings *handlers.SettingsHandler
	DB       *sql.DB
}

func NewRouter(h Handlers, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(logger.GinMiddleware(log))
	r.Use(logger.Recovery(log))

	r.GET("/healthz", healthHandler(h.DB))

	api := r.Group("/api")
	h.Auth.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(h.Auth.RequireAuth())
	if h.Jobs != nil {
		h.Jobs.RegisterRoutes(protected)
	}
	if h.Printers != nil {
		h.Printers.RegisterRoutes(protected)
	}
	if h.Webhooks != nil {
		h.Webhooks.RegisterRoutes(protected)
	}
	if h.Archives != nil {
		h.Archives.RegisterRoutes(protected)
	}
	if h.Settings != nil {
		h.Settings.RegisterRoutes(protected)
	}

	return r
}

func healthHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
