package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/internal/repository/sqlstore"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 5
	defaultConnMaxLifetime  = 5 * time.Minute
	defaultWriteConcurrency = 10
)

// DB is a postgres pool whose write transactions are bounded by a semaphore
type DB struct {
	*sqlx.DB
	writers *semaphore.Weighted
}

// Connect opens the pool described by cfg and checks it answers
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdleConns))
	lifetime := time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	writers := orDefault(cfg.WriteConcurrency, defaultWriteConcurrency)
	log.Debug().
		Str("host", cfg.Host).
		Str("database", cfg.DBName).
		Int("writers", writers).
		Msg("connected to postgres")

	return &DB{DB: db, writers: semaphore.NewWeighted(int64(writers))}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithTx runs fn in a transaction, committing when it returns nil
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := db.writers.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for write slot: %w", err)
	}
	defer db.writers.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NewTimeSeriesStore returns the product time series store on db, creating
// its tables when missing
func NewTimeSeriesStore(ctx context.Context, db *DB) (*sqlstore.Store, error) {
	store := sqlstore.New(db, sqlstore.Postgres)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
