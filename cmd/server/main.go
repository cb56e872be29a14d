package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/config"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/pkg/modr"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.InitWithFile(cfg.Log.Level, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	// 3. Open Monitor (database, notifications, services, retention)
	openCtx, cancelOpen := context.WithTimeout(context.Background(), time.Minute)
	mon, err := modr.Open(openCtx, cfg)
	cancelOpen()
	if err != nil {
		log.Fatalf("Failed to start monitor: %v", err)
	}

	// 4. Setup Router
	gin.SetMode(gin.ReleaseMode)
	r := mon.Handler()

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("MODR started", "port", cfg.Server.Port, "dashboard", cfg.Dashboard.Prefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := mon.Close(ctx); err != nil {
		logger.Warn("Monitor did not shut down cleanly", "error", err)
	}

	logger.Info("Server exiting")
}
