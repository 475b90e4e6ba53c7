package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/repository/sqlite"
	"github.com/andresuchdata/autorestock/internal/restock"
)

func newRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db.DB)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func TestRepositoryRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	run, err := repo.AcquireRun(ctx, "Drogheria", runDay.Add(15*time.Hour), 6.2, 3)
	if err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if run.ID == 0 || run.Status != StatusProcessing || run.Stage != StageGather || !run.Date.Equal(runDay) {
		t.Fatalf("run = %+v", run)
	}

	if _, err := repo.AcquireRun(ctx, "Drogheria", runDay, 6.2, 3); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second AcquireRun err = %v, want ErrRunInProgress", err)
	}
	if other, err := repo.AcquireRun(ctx, "Frutta", runDay, 3, 3); err != nil || other.ID == run.ID {
		t.Fatalf("other sector AcquireRun = %+v, %v", other, err)
	}

	now := time.Now().UTC()
	run.Status = StatusCompleted
	run.Stage = StageRecord
	run.CompletedAt = &now
	run.Results = &RunResults{
		Decisions: &domain.DecisionSet{
			Sector: "Drogheria",
			Orders: []domain.OrderLine{{Key: domain.ProductKey{Code: 7, Variant: 1}, Quantity: 3, RuleID: 1}},
		},
		Stats: &restock.RunStats{Success: 1, Packages: 3},
	}
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := repo.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil || got.Coverage != 6.2 {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.Results == nil || len(got.Results.Decisions.Orders) != 1 || got.Results.Stats.Packages != 3 {
		t.Errorf("results = %+v", got.Results)
	}

	latest, err := repo.GetLatestCompletedRun(ctx, "Drogheria")
	if err != nil || latest.ID != run.ID {
		t.Errorf("GetLatestCompletedRun() = %+v, %v", latest, err)
	}
	if _, err := repo.GetLatestCompletedRun(ctx, "Frutta"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	byDate, err := repo.GetRunByDate(ctx, "Drogheria", runDay)
	if err != nil || byDate == nil || byDate.ID != run.ID {
		t.Errorf("GetRunByDate() = %+v, %v", byDate, err)
	}
	if none, err := repo.GetRunByDate(ctx, "Drogheria", runDay.AddDate(0, 0, 1)); none != nil || err != nil {
		t.Errorf("GetRunByDate(next day) = %+v, %v; want nil, nil", none, err)
	}

	listed, err := repo.ListRuns(ctx, runDay)
	if err != nil || len(listed) != 2 {
		t.Errorf("ListRuns() = %d runs, %v; want 2", len(listed), err)
	}

	// a finished run can be taken over again
	again, err := repo.AcquireRun(ctx, "Drogheria", runDay, 5, 3)
	if err != nil {
		t.Fatalf("AcquireRun after completion: %v", err)
	}
	if again.ID != run.ID || again.Status != StatusProcessing || again.Results != nil || again.Coverage != 5 {
		t.Errorf("re-acquired run = %+v", again)
	}
}

func TestRepositoryGetRunMissing(t *testing.T) {
	if _, err := newRepository(t).GetRun(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRepositoryTakesOverStaleRun(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t).WithStaleAfter(time.Hour)

	run, err := repo.AcquireRun(ctx, "Drogheria", runDay, 6, 3)
	if err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if _, err := repo.AcquireRun(ctx, "Drogheria", runDay, 6, 3); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("fresh run: err = %v, want ErrRunInProgress", err)
	}

	// left processing by a process that went away
	run.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	run.Stage = StageDecide
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	taken, err := repo.AcquireRun(ctx, "Drogheria", runDay, 4, 3)
	if err != nil {
		t.Fatalf("AcquireRun on stale run: %v", err)
	}
	if taken.ID != run.ID || taken.Stage != StageGather || taken.Coverage != 4 {
		t.Errorf("taken over run = %+v", taken)
	}
	if time.Since(taken.StartedAt) > time.Minute {
		t.Errorf("started_at = %v, want a fresh start", taken.StartedAt)
	}
}

func TestRepositoryWithoutStaleTakeover(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t).WithStaleAfter(0)

	run, err := repo.AcquireRun(ctx, "Drogheria", runDay, 6, 3)
	if err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	run.StartedAt = time.Now().UTC().AddDate(0, 0, -3)
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if _, err := repo.AcquireRun(ctx, "Drogheria", runDay, 6, 3); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}
