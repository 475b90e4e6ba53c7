package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/restock"
)

// ErrRunInProgress is returned when a sector already has a processing run
var ErrRunInProgress = errors.New("restock run already in progress")

// RunnerConfig holds configuration for the sector runner
type RunnerConfig struct {
	Concurrency  int           // Number of sectors processed at once
	MaxRetries   int           // Attempts per run before it is marked failed
	RetryBackoff time.Duration // Backoff duration between retries
}

// DefaultRunnerConfig returns sensible defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrency:  4,
		MaxRetries:   3,
		RetryBackoff: 10 * time.Second,
	}
}

// RunStatus represents the current state of a restock run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Stage is the last checkpoint a run reached
type Stage string

const (
	StageGather Stage = "gather"
	StageDecide Stage = "decide"
	StageRecord Stage = "record"
	StageExport Stage = "export"
)

// RunResults is the outcome of a completed run as stored in the run log
type RunResults struct {
	Decisions *domain.DecisionSet `json:"decisions"`
	Stats     *restock.RunStats   `json:"stats"`
	ExportURI string              `json:"export_uri,omitempty"`
}

// RestockRun tracks a single restock run of a sector for a specific date
type RestockRun struct {
	ID           int64       `json:"id"`
	Sector       string      `json:"sector"`
	Date         time.Time   `json:"date"`
	Status       RunStatus   `json:"status"`
	Stage        Stage       `json:"stage"`
	Coverage     float64     `json:"coverage"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Results      *RunResults `json:"results,omitempty"`
}

// RunLog persists restock runs
type RunLog interface {
	// AcquireRun marks the run of sector for date as processing, creating it
	// when needed. It fails with ErrRunInProgress when another caller holds it.
	AcquireRun(ctx context.Context, sector string, date time.Time, coverage float64, maxRetries int) (*RestockRun, error)
	UpdateRun(ctx context.Context, run *RestockRun) error
}

// Decider computes the decisions of one sector
type Decider interface {
	Run(ctx context.Context, in restock.RunInput) (*domain.DecisionSet, *restock.RunStats, error)
}

// Exporter publishes the orders of a decision set and returns where they went
type Exporter interface {
	Export(ctx context.Context, set *domain.DecisionSet) (string, error)
}

// Job is one sector to run
type Job struct {
	Sector   string
	Date     time.Time
	Coverage float64
}
