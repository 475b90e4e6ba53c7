package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/andresuchdata/autorestock/internal/app"
	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/internal/drive"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/andresuchdata/autorestock/pkg/logger"
	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()
	app.ConfigureLogging(cfg.App)

	ctx := context.Background()
	if cfg.Drive.CredentialsJSON == "" {
		logger.Log.Fatal().Msg("GOOGLE_CREDENTIALS_JSON is required")
	}
	driveService, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
	}

	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer stores.Close()

	ingestService := drive.NewIngestService(driveService, service.NewInventoryService(stores.Store))

	r := mux.NewRouter()
	drive.NewHandler(driveService, ingestService).WithInbox(cfg.Drive.InboxPath).RegisterRoutes(r)

	addr := fmt.Sprintf(":%s", cfg.Server.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	logger.Log.Info().Str("addr", addr).Str("inbox", cfg.Drive.InboxPath).Msg("Ingest server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatal().Err(err).Msg("Ingest server stopped")
	}
}
