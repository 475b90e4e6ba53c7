package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// TimeSeriesReader is the read side of the product time series store
type TimeSeriesReader interface {
	// GetStats returns the stats of a product, nil when it has no stats row
	GetStats(ctx context.Context, key domain.ProductKey) (*domain.ProductStats, error)
	GetProduct(ctx context.Context, key domain.ProductKey) (*domain.ProductVariant, error)
	GetProductsBySector(ctx context.Context, sector string) ([]domain.SectorProduct, error)
	GetBlacklist(ctx context.Context, sector string) (domain.Blacklist, error)
	GetActivePromotions(ctx context.Context, today time.Time) (map[domain.ProductKey]domain.SaleWindow, error)
	GetRecentlyEndedPromotions(ctx context.Context, today time.Time, windowDays int) (map[domain.ProductKey]domain.EndedPromotion, error)
	GetInternalUseLosses(ctx context.Context) ([]domain.LossLedger, error)
}

// TimeSeriesWriter is the write side of the product time series store. Stock
// only ever moves by deltas, except for verification.
type TimeSeriesWriter interface {
	UpsertProduct(ctx context.Context, product domain.ProductVariant) error
	UpsertPromotion(ctx context.Context, window domain.SaleWindow) error
	AddToBlacklist(ctx context.Context, sector string, key domain.ProductKey) error
	UpdateStats(ctx context.Context, key domain.ProductKey, obs domain.Observation) (domain.ProductStats, error)
	RegisterLoss(ctx context.Context, key domain.ProductKey, lossType domain.LossType, qty int, date time.Time) error
	VerifyStock(ctx context.Context, key domain.ProductKey, stock int, date time.Time) error
	// FlagForPurge flags a product with stock left, or deletes it right away
	// when its stock is not positive. It reports whether the product was deleted.
	FlagForPurge(ctx context.Context, key domain.ProductKey) (bool, error)
	// PurgeFlagged deletes flagged products whose stock ran out
	PurgeFlagged(ctx context.Context) (int, error)
}

// TimeSeriesStore is the full product time series store
type TimeSeriesStore interface {
	TimeSeriesReader
	TimeSeriesWriter
	Close() error
}
