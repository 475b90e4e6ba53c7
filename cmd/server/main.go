package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/autorestock/internal/api"
	"github.com/andresuchdata/autorestock/internal/app"
	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	app.ConfigureLogging(cfg.App)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer stores.Close()

	runs, err := app.RunLog(ctx, stores.RunDB, cfg.Restock)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to prepare run log")
	}

	restockService, err := app.NewRestockService(ctx, cfg, stores, runs)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize restock service")
	}

	router := api.NewRouter(&api.Services{RestockService: restockService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
