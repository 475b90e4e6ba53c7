package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDiscountPct is used when the stored prices do not yield a positive discount
const DefaultDiscountPct = 15.0

// buffShare is the leading share of a promotion during which demand is boosted
const buffShare = 0.6

var hundred = decimal.NewFromInt(100)

// SaleWindow is an active or past promotion of a product variant
type SaleWindow struct {
	Key           ProductKey      `json:"key"`
	StandardPrice decimal.Decimal `json:"standard_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Start         time.Time       `json:"sale_start"`
	End           time.Time       `json:"sale_end"`
}

// DiscountPct returns the discount in percent rounded to two decimals,
// falling back to DefaultDiscountPct when it is not positive.
func (w SaleWindow) DiscountPct() float64 {
	if !w.StandardPrice.IsPositive() {
		return DefaultDiscountPct
	}
	pct := w.StandardPrice.Sub(w.SalePrice).Div(w.StandardPrice).Mul(hundred).Round(2)
	if !pct.IsPositive() {
		return DefaultDiscountPct
	}
	f, _ := pct.Float64()
	return f
}

// ActiveOn reports whether day falls within the promotion, both ends inclusive
func (w SaleWindow) ActiveOn(day time.Time) bool {
	return DaysBetween(w.Start, day) >= 0 && DaysBetween(day, w.End) >= 0
}

// SpanDays returns the number of days the promotion lasts
func (w SaleWindow) SpanDays() int {
	return DaysBetween(w.Start, w.End) + 1
}

// InBuffWindow reports whether day is within the first 60% of the promotion
func (w SaleWindow) InBuffWindow(day time.Time) bool {
	if !w.ActiveOn(day) {
		return false
	}
	threshold := int(math.Ceil(float64(w.SpanDays()) * buffShare))
	elapsed := DaysBetween(w.Start, day) + 1
	return elapsed <= threshold
}

// Ended describes the promotion relative to today once it is over
func (w SaleWindow) Ended(today time.Time) EndedPromotion {
	return EndedPromotion{
		Key:          w.Key,
		DaysLasted:   w.SpanDays(),
		DaysSinceEnd: DaysBetween(w.End, today),
	}
}

// EndedPromotion is a promotion that ended recently
type EndedPromotion struct {
	Key          ProductKey `json:"key"`
	DaysLasted   int        `json:"days_lasted"`
	DaysSinceEnd int        `json:"days_since_end"`
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// MonthsBetween returns the number of calendar months from a to b
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
