package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/config"
	"github.com/Miguel-Alzate/modr/internal/handler"
	"github.com/Miguel-Alzate/modr/internal/middleware"
	"github.com/Miguel-Alzate/modr/internal/notifier"
	"github.com/Miguel-Alzate/modr/internal/service"
)

// Deps are the services the router needs. Hub may be nil when live
// notifications are disabled.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Capture   *service.CaptureService
	Dashboard *service.DashboardService
	Hub       *notifier.Hub
}

// New builds the engine with the capture middleware installed globally and
// the monitoring API mounted under the dashboard prefix. Host routes
// registered on the returned engine are captured.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	Install(r, d)
	return r
}

// Install adds the capture chain to r and mounts the monitoring API, the
// health check and the metrics endpoint on it. gin applies middleware only
// to routes registered afterwards, so host routes must come after Install.
func Install(r *gin.Engine, d Deps) {
	cfg := d.Config

	bypass := append([]string{cfg.Dashboard.Prefix, "/health"}, cfg.Dashboard.AdminPaths...)
	if cfg.Metrics.Enabled {
		bypass = append(bypass, cfg.Metrics.Path)
	}
	r.Use(middleware.BypassGate(bypass...))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.Identity(cfg.Auth.JWTSecret))
	r.Use(middleware.Capture(middleware.CaptureOptions{
		Decider:       middleware.NewDecider(cfg.Capture),
		Sink:          d.Capture,
		MaxBodyBytes:  cfg.Capture.MaxBodyBytes,
		RecordQueries: cfg.Capture.RecordQueries,
	}))
	r.Use(middleware.ErrorHandler())

	r.GET("/health", health(d.DB))
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	requests := handler.NewRequestHandler(d.Dashboard, d.Capture)
	stats := handler.NewStatsHandler(d.Dashboard)
	cleanup := handler.NewCleanupHandler(d.Dashboard)
	live := handler.NewLiveHandler(d.Hub)

	api := r.Group(cfg.Dashboard.Prefix)
	api.Use(middleware.CORSMiddleware(cfg.Dashboard.CORSOrigins))
	api.Use(middleware.RateLimitMiddleware(cfg.Dashboard.RateQPS, cfg.Dashboard.RateBurst))
	api.Use(middleware.AdminMiddleware(cfg))
	api.Use(middleware.ReadOnlyMiddleware(cfg.Dashboard.ReadOnly))
	{
		api.GET("/requests", requests.List)
		api.POST("/requests", requests.Create)
		api.GET("/requests/:id", requests.Get)
		api.DELETE("/requests/:id", requests.Delete)
		api.GET("/stats", stats.Get)
		api.GET("/cleanup/preview", cleanup.Preview)
		api.DELETE("/cleanup/older-than/:days", cleanup.OlderThan)
		api.DELETE("/cleanup/status/:code", cleanup.ByStatus)
		api.DELETE("/cleanup/method/:name", cleanup.ByMethod)
		api.GET("/ws", live.Subscribe)
	}
	if len(cfg.Dashboard.CORSOrigins) > 0 {
		// preflights need a route to reach the group middleware
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		state := "ok"
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				status = http.StatusServiceUnavailable
				state = "database unavailable"
			}
		}
		c.JSON(status, gin.H{"status": state, "service": "modr"})
	}
}
