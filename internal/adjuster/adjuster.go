package adjuster

import (
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// Config holds the promotion policy of a run
type Config struct {
	// SkipSale drops products on promotion instead of boosting them
	SkipSale bool
	// EndedPromotionWindowDays is how long after its end a promotion is
	// still spliced out of the daily ledger
	EndedPromotionWindowDays int
}

// DefaultConfig returns the production policy
func DefaultConfig() Config {
	return Config{EndedPromotionWindowDays: 14}
}

// Promotion is the effect of an active sale window on a product
type Promotion struct {
	Active      bool
	DiscountPct float64
	Boost       bool // today is within the first 60% of the promotion
}

// Discount returns the discount as an optional value for order lines
func (p Promotion) Discount() *float64 {
	if !p.Active {
		return nil
	}
	d := p.DiscountPct
	return &d
}

// Adjustment is the corrected demand of a product
type Adjustment struct {
	RequiredStock float64
	Promotion     Promotion
	// Skip is set when the run skips products on promotion
	Skip       bool
	SkipReason string
}

// Adjuster folds losses and promotions into raw forecasts
type Adjuster struct {
	cfg Config
}

// New creates a new adjuster
func New(cfg Config) *Adjuster {
	return &Adjuster{cfg: cfg}
}

// IntegrateInternalLosses adds the internal-use loss ledger to the sold
// history. The ledger is first padded with a zero month for every whole
// month elapsed since its last update so both series share month 0.
func (a *Adjuster) IntegrateInternalLosses(sold domain.MonthlyHistory, losses *domain.LossLedger, today time.Time) domain.MonthlyHistory {
	if losses == nil {
		return sold
	}
	return sold.Plus(losses.AlignedTo(today))
}

// Promotion evaluates the sale window of a product for today
func (a *Adjuster) Promotion(window *domain.SaleWindow, today time.Time) Promotion {
	if window == nil || !window.ActiveOn(today) {
		return Promotion{}
	}
	return Promotion{
		Active:      true,
		DiscountPct: window.DiscountPct(),
		Boost:       window.InBuffWindow(today),
	}
}

// Adjust returns the stock required to cover coverageDays of demand.
// During the first 60% of an active promotion the requirement grows by the
// discount percentage.
func (a *Adjuster) Adjust(dailyRate, coverageDays float64, window *domain.SaleWindow, today time.Time) Adjustment {
	promo := a.Promotion(window, today)
	if promo.Active && a.cfg.SkipSale {
		return Adjustment{Promotion: promo, Skip: true, SkipReason: "on sale, skipped by run policy"}
	}

	required := dailyRate * coverageDays
	if promo.Boost {
		required += required * promo.DiscountPct / 100
	}

	return Adjustment{RequiredStock: required, Promotion: promo}
}

// ExcludePromotion removes from a newest-first daily series the days a
// recently ended promotion covered. Index 0 of the series is the day of the
// last stats update, lag days before today, so the promotion's last day sits
// at index DaysSinceEnd-lag. A promotion still running at the last update
// only loses its observed part. Promotions that ended outside the configured
// window leave the series untouched.
func (a *Adjuster) ExcludePromotion(series []float64, ended *domain.EndedPromotion, lag int) []float64 {
	if ended == nil || ended.DaysLasted <= 0 || ended.DaysSinceEnd < 0 ||
		ended.DaysSinceEnd > a.cfg.EndedPromotionWindowDays {
		return series
	}

	from := ended.DaysSinceEnd - lag
	to := from + ended.DaysLasted
	if from < 0 {
		from = 0
	}
	if to > len(series) {
		to = len(series)
	}
	if from >= to {
		return series
	}

	out := make([]float64, 0, len(series)-(to-from))
	out = append(out, series[:from]...)
	out = append(out, series[to:]...)
	return out
}
