package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/autorestock/internal/restock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Runner runs sectors through the restock decision pipeline and records each
// run in the run log. Sectors run concurrently and independently.
type Runner struct {
	runs     RunLog
	decider  Decider
	exporter Exporter
	cfg      RunnerConfig
}

// NewRunner creates a new runner. exporter may be nil.
func NewRunner(runs RunLog, decider Decider, exporter Exporter, cfg RunnerConfig) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Runner{runs: runs, decider: decider, exporter: exporter, cfg: cfg}
}

// RunSectors processes the jobs with at most Concurrency sectors at once. A
// failing sector does not stop the others; the returned runs keep the input
// order and the error joins every sector failure.
func (r *Runner) RunSectors(ctx context.Context, jobs []Job) ([]*RestockRun, error) {
	runs := make([]*RestockRun, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			run, err := r.RunSector(ctx, job)
			runs[i] = run
			if err != nil {
				errs[i] = fmt.Errorf("sector %s: %w", job.Sector, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return runs, errors.Join(errs...)
}

// RunSector acquires the run of a sector and drives it to completion,
// retrying run failures up to MaxRetries attempts.
func (r *Runner) RunSector(ctx context.Context, job Job) (*RestockRun, error) {
	logger := log.With().Str("sector", job.Sector).Str("date", job.Date.Format("2006-01-02")).Logger()

	run, err := r.runs.AcquireRun(ctx, job.Sector, job.Date, job.Coverage, r.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run: %w", err)
	}
	logger = logger.With().Int64("run", run.ID).Logger()

	for attempt := 1; ; attempt++ {
		err = r.attempt(ctx, run)
		if err == nil {
			logger.Info().Int("retries", run.RetryCount).Msg("restock run completed")
			return run, nil
		}
		if !errors.Is(err, restock.ErrRunFailure) || attempt >= run.MaxRetries || ctx.Err() != nil {
			break
		}

		run.RetryCount++
		run.ErrorMessage = err.Error()
		logger.Warn().Err(err).Msgf("run failed, retrying (attempt %d/%d)", attempt+1, run.MaxRetries)
		if uerr := r.runs.UpdateRun(ctx, run); uerr != nil {
			logger.Warn().Err(uerr).Msg("failed to record retry")
		}

		if !sleep(ctx, r.cfg.RetryBackoff) {
			err = ctx.Err()
			break
		}
	}

	run.Status = StatusFailed
	run.ErrorMessage = err.Error()
	now := time.Now().UTC()
	run.CompletedAt = &now
	// the caller context may be gone; the failure must still be recorded
	if uerr := r.runs.UpdateRun(context.WithoutCancel(ctx), run); uerr != nil {
		logger.Error().Err(uerr).Msg("failed to mark run as failed")
	}
	logger.Error().Err(err).Str("stage", string(run.Stage)).Msg("restock run failed")
	return run, err
}

func (r *Runner) attempt(ctx context.Context, run *RestockRun) error {
	run.Stage = StageDecide
	set, stats, err := r.decider.Run(ctx, restock.RunInput{
		RunID:    strconv.FormatInt(run.ID, 10),
		Sector:   run.Sector,
		Today:    run.Date,
		Coverage: run.Coverage,
	})
	if err != nil {
		return err
	}

	run.Stage = StageRecord
	run.Results = &RunResults{Decisions: set, Stats: stats}
	if err := r.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("%w: record results: %w", restock.ErrRunFailure, err)
	}

	if r.exporter != nil && len(set.Orders) > 0 {
		run.Stage = StageExport
		uri, err := r.exporter.Export(ctx, set)
		if err != nil {
			return fmt.Errorf("%w: export orders: %w", restock.ErrRunFailure, err)
		}
		run.Results.ExportURI = uri
	}

	run.Status = StatusCompleted
	run.ErrorMessage = ""
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := r.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("%w: complete run: %w", restock.ErrRunFailure, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
