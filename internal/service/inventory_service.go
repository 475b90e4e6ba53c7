package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/repository"
	"github.com/rs/zerolog/log"
)

// StockCount is a physical stock count of a product
type StockCount struct {
	Key   domain.ProductKey
	Stock int
}

// LossEntry is a quantity lost to breakage, expiry or internal use
type LossEntry struct {
	Key  domain.ProductKey
	Type domain.LossType
	Qty  int
}

// Observation is a scraped reading of the month to date sold and bought
// quantities of a product
type Observation struct {
	Key        domain.ProductKey
	Sold       int
	Bought     int
	PrevSold   *int
	PrevBought *int
}

// IngestReport summarises a batch ingest. Rows that fail do not stop the batch.
type IngestReport struct {
	Applied int      `json:"applied"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *IngestReport) fail(key domain.ProductKey, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", key, err))
}

type InventoryService struct {
	store repository.TimeSeriesWriter
}

func NewInventoryService(store repository.TimeSeriesWriter) *InventoryService {
	return &InventoryService{store: store}
}

// ApplyObservations folds scraped readings into the product stats
func (s *InventoryService) ApplyObservations(ctx context.Context, observations []Observation, date time.Time) (*IngestReport, error) {
	report := &IngestReport{}
	for _, o := range observations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := s.store.UpdateStats(ctx, o.Key, domain.Observation{
			Sold:       o.Sold,
			Bought:     o.Bought,
			PrevSold:   o.PrevSold,
			PrevBought: o.PrevBought,
			Date:       date,
		})
		if err != nil {
			report.fail(o.Key, err)
			continue
		}
		report.Applied++
	}

	log.Info().
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Msg("inventory: observations ingested")
	return report, nil
}

// ApplyVerification sets the counted stock of each product and marks it verified
func (s *InventoryService) ApplyVerification(ctx context.Context, counts []StockCount, date time.Time) (*IngestReport, error) {
	report := &IngestReport{}
	for _, c := range counts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.store.VerifyStock(ctx, c.Key, c.Stock, date); err != nil {
			report.fail(c.Key, err)
			continue
		}
		report.Applied++
	}

	log.Info().
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Msg("inventory: verification ingested")
	return report, nil
}

// ApplyLosses registers losses against the stock of each product
func (s *InventoryService) ApplyLosses(ctx context.Context, entries []LossEntry, date time.Time) (*IngestReport, error) {
	report := &IngestReport{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if e.Qty <= 0 {
			report.fail(e.Key, fmt.Errorf("loss quantity must be positive, got %d", e.Qty))
			continue
		}
		if err := s.store.RegisterLoss(ctx, e.Key, e.Type, e.Qty, date); err != nil {
			report.fail(e.Key, err)
			continue
		}
		report.Applied++
	}

	log.Info().
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Msg("inventory: losses ingested")
	return report, nil
}

// FlagForPurge flags products for removal. Products without stock are removed at once.
func (s *InventoryService) FlagForPurge(ctx context.Context, keys []domain.ProductKey) (*IngestReport, error) {
	report := &IngestReport{}
	for _, key := range keys {
		deleted, err := s.store.FlagForPurge(ctx, key)
		if err != nil {
			report.fail(key, err)
			continue
		}
		report.Applied++
		log.Debug().Str("key", key.String()).Bool("deleted", deleted).Msg("inventory: product flagged for purge")
	}
	return report, nil
}

func (s *InventoryService) PurgeFlagged(ctx context.Context) (int, error) {
	return s.store.PurgeFlagged(ctx)
}
