package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS restock_runs (
		id BIGSERIAL PRIMARY KEY,
		sector TEXT NOT NULL,
		run_date DATE NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		coverage DOUBLE PRECISION NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT '',
		results JSONB,
		UNIQUE (sector, run_date)
	)
`

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS restock_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sector TEXT NOT NULL,
		run_date DATE NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		coverage REAL NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		error_message TEXT NOT NULL DEFAULT '',
		results TEXT,
		UNIQUE (sector, run_date)
	)
`

const runColumns = `id, sector, run_date, status, stage, coverage, retry_count,
	max_retries, started_at, completed_at, error_message, results`

// DefaultStaleAfter is how long a processing run blocks its sector and date
// before another caller may take it over
const DefaultStaleAfter = time.Hour

// Repository handles database operations for restock run tracking
type Repository struct {
	db         *sqlx.DB
	staleAfter time.Duration
}

// NewRepository creates a new run repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, staleAfter: DefaultStaleAfter}
}

// WithStaleAfter sets the age after which a processing run is considered
// abandoned. Zero or less never takes over a processing run.
func (r *Repository) WithStaleAfter(d time.Duration) *Repository {
	r.staleAfter = d
	return r
}

func (r *Repository) stale(run *RestockRun) bool {
	return r.staleAfter > 0 && time.Since(run.StartedAt) >= r.staleAfter
}

func (r *Repository) postgres() bool {
	return sqlx.BindType(r.db.DriverName()) == sqlx.DOLLAR
}

// EnsureSchema creates the run table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if r.postgres() {
		schema = postgresSchema
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create restock_runs: %w", err)
	}
	return nil
}

type runRow struct {
	ID           int64          `db:"id"`
	Sector       string         `db:"sector"`
	Date         time.Time      `db:"run_date"`
	Status       string         `db:"status"`
	Stage        string         `db:"stage"`
	Coverage     float64        `db:"coverage"`
	RetryCount   int            `db:"retry_count"`
	MaxRetries   int            `db:"max_retries"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	ErrorMessage string         `db:"error_message"`
	Results      sql.NullString `db:"results"`
}

func (row runRow) run() (*RestockRun, error) {
	run := &RestockRun{
		ID:           row.ID,
		Sector:       row.Sector,
		Date:         row.Date,
		Status:       RunStatus(row.Status),
		Stage:        Stage(row.Stage),
		Coverage:     row.Coverage,
		RetryCount:   row.RetryCount,
		MaxRetries:   row.MaxRetries,
		StartedAt:    row.StartedAt,
		ErrorMessage: row.ErrorMessage,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	if row.Results.Valid && row.Results.String != "" {
		run.Results = &RunResults{}
		if err := json.Unmarshal([]byte(row.Results.String), run.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of run %d: %w", row.ID, err)
		}
	}
	return run, nil
}

func runDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AcquireRun creates the run of sector for date, or takes over an existing
// one that is not processing or whose processing went stale. The row is
// locked while it is inspected.
func (r *Repository) AcquireRun(ctx context.Context, sector string, date time.Time, coverage float64, maxRetries int) (*RestockRun, error) {
	date = runDate(date)
	var acquired *RestockRun

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT ` + runColumns + ` FROM restock_runs WHERE sector = ? AND run_date = ?`
		if r.postgres() {
			query += " FOR UPDATE"
		}

		var row runRow
		err := sqlx.GetContext(ctx, tx, &row, tx.Rebind(query), sector, date)
		if errors.Is(err, sql.ErrNoRows) {
			run := &RestockRun{
				Sector:     sector,
				Date:       date,
				Status:     StatusProcessing,
				Stage:      StageGather,
				Coverage:   coverage,
				MaxRetries: maxRetries,
				StartedAt:  time.Now().UTC(),
			}
			insert := `
				INSERT INTO restock_runs (
					sector, run_date, status, stage, coverage, max_retries, started_at
				) VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (sector, run_date) DO NOTHING
				RETURNING id
			`
			err := tx.QueryRowxContext(ctx, tx.Rebind(insert),
				run.Sector, run.Date, run.Status, run.Stage, run.Coverage, run.MaxRetries, run.StartedAt,
			).Scan(&run.ID)
			if errors.Is(err, sql.ErrNoRows) {
				// inserted concurrently by another caller
				return ErrRunInProgress
			}
			if err != nil {
				return fmt.Errorf("failed to create run: %w", err)
			}
			acquired = run
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}

		run, err := row.run()
		if err != nil {
			return err
		}
		if run.Status == StatusProcessing {
			if !r.stale(run) {
				return ErrRunInProgress
			}
			log.Warn().
				Int64("run", run.ID).
				Str("sector", sector).
				Time("started_at", run.StartedAt).
				Msg("taking over stale restock run")
		}

		run.Status = StatusProcessing
		run.Stage = StageGather
		run.Coverage = coverage
		run.RetryCount = 0
		run.MaxRetries = maxRetries
		run.StartedAt = time.Now().UTC()
		run.CompletedAt = nil
		run.ErrorMessage = ""
		run.Results = nil
		if err := r.update(ctx, tx, run); err != nil {
			return err
		}
		acquired = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

// UpdateRun updates an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *RestockRun) error {
	return r.update(ctx, r.db, run)
}

func (r *Repository) update(ctx context.Context, q sqlx.ExtContext, run *RestockRun) error {
	var results sql.NullString
	if run.Results != nil {
		data, err := json.Marshal(run.Results)
		if err != nil {
			return fmt.Errorf("failed to encode results of run %d: %w", run.ID, err)
		}
		results = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		UPDATE restock_runs
		SET status = ?, stage = ?, coverage = ?, retry_count = ?, max_retries = ?,
		    started_at = ?, completed_at = ?, error_message = ?, results = ?
		WHERE id = ?
	`
	_, err := q.ExecContext(ctx, q.Rebind(query),
		run.Status, run.Stage, run.Coverage, run.RetryCount, run.MaxRetries,
		run.StartedAt, run.CompletedAt, run.ErrorMessage, results, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id int64) (*RestockRun, error) {
	var row runRow
	query := `SELECT ` + runColumns + ` FROM restock_runs WHERE id = ?`
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return row.run()
}

// GetRunByDate retrieves the run of a sector for a specific date, nil when
// there is none
func (r *Repository) GetRunByDate(ctx context.Context, sector string, date time.Time) (*RestockRun, error) {
	var row runRow
	query := `SELECT ` + runColumns + ` FROM restock_runs WHERE sector = ? AND run_date = ?`
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(query), sector, runDate(date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run of %s: %w", sector, err)
	}
	return row.run()
}

// GetLatestCompletedRun retrieves the most recent completed run of a sector
func (r *Repository) GetLatestCompletedRun(ctx context.Context, sector string) (*RestockRun, error) {
	var row runRow
	query := `
		SELECT ` + runColumns + `
		FROM restock_runs
		WHERE sector = ? AND status = ?
		ORDER BY run_date DESC, id DESC
		LIMIT 1
	`
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(query), sector, StatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completed run of %s: %w", sector, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run of %s: %w", sector, err)
	}
	return row.run()
}

// ListRuns retrieves the runs of a date across sectors
func (r *Repository) ListRuns(ctx context.Context, date time.Time) ([]*RestockRun, error) {
	var rows []runRow
	query := `SELECT ` + runColumns + ` FROM restock_runs WHERE run_date = ? ORDER BY sector`
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), runDate(date)); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*RestockRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
