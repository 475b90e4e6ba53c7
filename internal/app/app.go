// Package app wires the stores, caches and services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/cache"
	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/internal/repository"
	"github.com/andresuchdata/autorestock/internal/repository/postgres"
	"github.com/andresuchdata/autorestock/internal/repository/sqlite"
	"github.com/andresuchdata/autorestock/internal/restock"
	"github.com/andresuchdata/autorestock/internal/schedule"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/andresuchdata/autorestock/internal/storage"
	"github.com/andresuchdata/autorestock/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ConfigureLogging applies LOG_FORMAT and LOG_LEVEL to the global logger
func ConfigureLogging(cfg config.AppConfig) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.UseJSON(os.Stdout)
	}
	logger.SetLevel(cfg.LogLevel)
}

// Stores is the product store and the database holding the run log
type Stores struct {
	Store repository.TimeSeriesStore
	RunDB *sqlx.DB
}

func (s *Stores) Close() error {
	return s.Store.Close()
}

// OpenStores opens the store selected by STORE_DRIVER and creates its tables
func OpenStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "":
		db, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := postgres.NewTimeSeriesStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Stores{Store: store, RunDB: db.DB}, nil
	case DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.NewTimeSeriesStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Stores{Store: store, RunDB: db.DB}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// RunLog returns the run log on db with its table in place
func RunLog(ctx context.Context, db *sqlx.DB, cfg config.RestockConfig) (*pipeline.Repository, error) {
	runs := pipeline.NewRepository(db).WithStaleAfter(time.Duration(cfg.StaleRunMinutes) * time.Minute)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// RestockPolicy maps the restock settings onto the orchestrator policy
func RestockPolicy(cfg config.RestockConfig) restock.Config {
	policy := restock.DefaultConfig()
	policy.PerishableSectors = cfg.PerishableSectors
	if cfg.MinimumStockBase > 0 {
		policy.MinimumStockBase = cfg.MinimumStockBase
	}
	policy.Adjuster.SkipSale = cfg.SkipSale
	if cfg.EndedPromotionWindowDays > 0 {
		policy.Adjuster.EndedPromotionWindowDays = cfg.EndedPromotionWindowDays
	}
	return policy
}

func RunnerConfig(cfg config.RestockConfig) pipeline.RunnerConfig {
	runner := pipeline.DefaultRunnerConfig()
	if cfg.SectorConcurrency > 0 {
		runner.Concurrency = cfg.SectorConcurrency
	}
	if cfg.MaxRetries > 0 {
		runner.MaxRetries = cfg.MaxRetries
	}
	return runner
}

func Schedule(cfg config.RestockConfig) (*schedule.Schedule, error) {
	sched, err := schedule.Parse(cfg.OrderDays, cfg.DayWeights)
	if err != nil {
		return nil, fmt.Errorf("invalid order schedule: %w", err)
	}
	return sched, nil
}

// Exporter returns the order exporter: object storage when enabled, the
// export directory otherwise
func Exporter(ctx context.Context, cfg *config.Config) (*storage.OrderExporter, error) {
	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return storage.NewOrderExporter(client, cfg.Storage.Prefix), nil
	}

	dir, err := storage.NewDirStorage(cfg.App.ExportDir)
	if err != nil {
		return nil, err
	}
	return storage.NewOrderExporter(dir, ""), nil
}

// NewRestockService builds the restock service over the stores
func NewRestockService(ctx context.Context, cfg *config.Config, stores *Stores, runs *pipeline.Repository) (*service.RestockService, error) {
	sched, err := Schedule(cfg.Restock)
	if err != nil {
		return nil, err
	}
	exporter, err := Exporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runCache, err := cache.NewRunCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("cache unavailable, continuing without it")
		runCache = cache.NewNoopRunCache()
	}

	orchestrator := restock.NewOrchestrator(stores.Store, RestockPolicy(cfg.Restock))
	runner := pipeline.NewRunner(runs, orchestrator, exporter, RunnerConfig(cfg.Restock))
	return service.NewRestockService(runner, runs, orchestrator, sched, runCache, cfg.Restock.Sectors), nil
}
