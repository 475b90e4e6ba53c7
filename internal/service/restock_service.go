package service

import (
	"context"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/cache"
	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/internal/restock"
	"github.com/andresuchdata/autorestock/internal/schedule"
	"github.com/rs/zerolog/log"
)

// RunStore is the run log read by the service
type RunStore interface {
	GetRun(ctx context.Context, id int64) (*pipeline.RestockRun, error)
	GetLatestCompletedRun(ctx context.Context, sector string) (*pipeline.RestockRun, error)
}

// Explainer traces the decision on a single product
type Explainer interface {
	Explain(ctx context.Context, in restock.RunInput, key domain.ProductKey) (*restock.Trace, error)
}

type RestockService struct {
	runner    *pipeline.Runner
	runs      RunStore
	explainer Explainer
	schedule  *schedule.Schedule
	cache     cache.RunCache
	sectors   []string
}

func NewRestockService(runner *pipeline.Runner, runs RunStore, explainer Explainer, sched *schedule.Schedule, cacheImpl cache.RunCache, sectors []string) *RestockService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopRunCache()
	}
	if sched == nil {
		sched = schedule.New()
	}
	return &RestockService{
		runner:    runner,
		runs:      runs,
		explainer: explainer,
		schedule:  sched,
		cache:     cacheImpl,
		sectors:   sectors,
	}
}

// Sectors returns the configured sectors
func (s *RestockService) Sectors() []string {
	return s.sectors
}

// Coverage returns the coverage days used for a run on date
func (s *RestockService) Coverage(date time.Time) float64 {
	return s.schedule.Coverage(date.Weekday())
}

func (s *RestockService) job(sector string, date time.Time, coverage *float64) pipeline.Job {
	job := pipeline.Job{Sector: strings.TrimSpace(sector), Date: date}
	if coverage != nil {
		job.Coverage = *coverage
	} else {
		job.Coverage = s.Coverage(date)
	}
	return job
}

// RunSector runs the restock pipeline over one sector. A nil coverage uses
// the order schedule.
func (s *RestockService) RunSector(ctx context.Context, sector string, date time.Time, coverage *float64) (*pipeline.RestockRun, error) {
	run, err := s.runner.RunSector(ctx, s.job(sector, date, coverage))
	if run != nil {
		s.forget(ctx, run.Sector)
	}
	return run, err
}

// RunAll runs every configured sector concurrently
func (s *RestockService) RunAll(ctx context.Context, date time.Time, coverage *float64) ([]*pipeline.RestockRun, error) {
	jobs := make([]pipeline.Job, 0, len(s.sectors))
	for _, sector := range s.sectors {
		jobs = append(jobs, s.job(sector, date, coverage))
	}

	runs, err := s.runner.RunSectors(ctx, jobs)
	for _, run := range runs {
		if run != nil {
			s.forget(ctx, run.Sector)
		}
	}
	return runs, err
}

// forget drops the cached latest run of a sector once any of its runs ends
func (s *RestockService) forget(ctx context.Context, sector string) {
	if err := s.cache.Invalidate(ctx, sector); err != nil {
		log.Warn().Err(err).Str("sector", sector).Msg("restock: cache invalidate failed")
	}
}

func (s *RestockService) remember(ctx context.Context, run *pipeline.RestockRun) {
	if err := s.cache.SetLatest(ctx, run); err != nil {
		log.Warn().Err(err).Str("sector", run.Sector).Msg("restock: cache set latest run failed")
	}
}

// GetLatest returns the latest completed run of a sector, as ordered by the
// run log. The cache is filled on a miss.
func (s *RestockService) GetLatest(ctx context.Context, sector string) (*pipeline.RestockRun, error) {
	if run, ok, err := s.cache.GetLatest(ctx, sector); err == nil && ok {
		return run, nil
	} else if err != nil {
		log.Warn().Err(err).Str("sector", sector).Msg("restock: cache get latest run failed")
	}

	run, err := s.runs.GetLatestCompletedRun(ctx, sector)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, run)
	return run, nil
}

func (s *RestockService) GetRun(ctx context.Context, id int64) (*pipeline.RestockRun, error) {
	return s.runs.GetRun(ctx, id)
}

// Explain traces the decision on one product without recording a run
func (s *RestockService) Explain(ctx context.Context, sector string, date time.Time, coverage *float64, key domain.ProductKey) (*restock.Trace, error) {
	job := s.job(sector, date, coverage)
	return s.explainer.Explain(ctx, restock.RunInput{
		Sector:   job.Sector,
		Today:    job.Date,
		Coverage: job.Coverage,
	}, key)
}
