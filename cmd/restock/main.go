package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/app"
	"github.com/andresuchdata/autorestock/internal/config"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

type envKey struct{}

// env holds the connections opened for a command
type env struct {
	cfg    *config.Config
	stores *app.Stores
	runs   *pipeline.Repository
	runDB  *sqlx.DB // separate run log connection, nil when shared with the store
}

func newDriverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "driver",
		Usage:   "Store driver: postgres or sqlite",
		EnvVars: []string{"STORE_DRIVER"},
	}
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Postgres connection string",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func newDateFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "date",
		Usage: "Run date (YYYY-MM-DD), defaults to today",
	}
}

func parseDate(c *cli.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.String("date"))
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return date, nil
}

// openRunLog opens the postgres run log through pgx
func openRunLog(dsn string) (*sqlx.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return sqlx.NewDb(db, "pgx"), nil
}

func initEnv(c *cli.Context) error {
	cfg := config.Load()
	app.ConfigureLogging(cfg.App)

	dbCfg := cfg.Database
	if driver := c.String("driver"); driver != "" {
		dbCfg.Driver = driver
	}
	if url := c.String("db-url"); url != "" {
		dbCfg.URL = url
	}

	stores, err := app.OpenStores(c.Context, dbCfg)
	if err != nil {
		return err
	}

	e := &env{cfg: cfg, stores: stores}
	runDB := stores.RunDB
	if strings.EqualFold(dbCfg.Driver, app.DriverPostgres) || dbCfg.Driver == "" {
		if e.runDB, err = openRunLog(dbCfg.DSN()); err != nil {
			stores.Close()
			return err
		}
		runDB = e.runDB
	}

	if e.runs, err = app.RunLog(c.Context, runDB, cfg.Restock); err != nil {
		e.close()
		return err
	}

	c.Context = context.WithValue(c.Context, envKey{}, e)
	return nil
}

func (e *env) close() error {
	if e.runDB != nil {
		e.runDB.Close()
	}
	return e.stores.Close()
}

func closeEnv(c *cli.Context) error {
	if e, ok := c.Context.Value(envKey{}).(*env); ok && e != nil {
		return e.close()
	}
	return nil
}

func envFrom(c *cli.Context) *env {
	return c.Context.Value(envKey{}).(*env)
}

func main() {
	cliApp := &cli.App{
		Name:  "restock",
		Usage: "Decide and record the restock orders of each sector",
		Flags: []cli.Flag{
			newDriverFlag(),
			newDBURLFlag(),
		},
		Before: initEnv,
		After:  closeEnv,
		Commands: []*cli.Command{
			runCommand(),
			explainCommand(),
			exportCommand(),
			verifyCommand(),
			lossesCommand(),
			observeCommand(),
			purgeCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("restock failed")
		os.Exit(1)
	}
}
