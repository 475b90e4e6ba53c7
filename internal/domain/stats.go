package domain

import "time"

// LossType is the kind of stock loss
type LossType string

const (
	LossBroken   LossType = "broken"
	LossExpired  LossType = "expired"
	LossInternal LossType = "internal"
)

// Valid reports whether t is a known loss type
func (t LossType) Valid() bool {
	switch t {
	case LossBroken, LossExpired, LossInternal:
		return true
	}
	return false
}

// LossLedger is a monthly loss history of one type for a product variant
type LossLedger struct {
	Key         ProductKey     `json:"key"`
	Type        LossType       `json:"type"`
	History     MonthlyHistory `json:"loss_history"`
	LastUpdated time.Time      `json:"last_updated"`
}

// AlignedTo returns the history padded with a zero month for each whole
// month elapsed between the last update and today.
func (l LossLedger) AlignedTo(today time.Time) MonthlyHistory {
	if l.LastUpdated.IsZero() {
		return l.History
	}
	months := MonthsBetween(l.LastUpdated, today)
	if months <= 0 {
		return l.History
	}
	return l.History.PadFront(months)
}

// Record adds qty to the current month of the ledger as of date
func (l LossLedger) Record(qty int, date time.Time) LossLedger {
	aligned := l.AlignedTo(date)
	if aligned.Len() == 0 {
		aligned = NewMonthlyHistory(0)
	}
	l.History = aligned.WithCurrent(aligned.At(0) + qty)
	l.LastUpdated = date
	return l
}

// Observation is a scraped reading of the cumulative quantities of the
// current month. PrevSold and PrevBought carry the final totals of the
// previous month and are only read when the month rolled since the last
// update.
type Observation struct {
	Sold       int
	Bought     int
	PrevSold   *int
	PrevBought *int
	Date       time.Time
}

// ApplyObservation folds an observation into the stats using delta
// accounting: stock moves by the bought and sold deltas and is never
// recomputed from history.
func (s ProductStats) ApplyObservation(obs Observation) ProductStats {
	months := 0
	days := 0
	if !s.LastUpdate.IsZero() {
		months = MonthsBetween(s.LastUpdate, obs.Date)
		days = DaysBetween(s.LastUpdate, obs.Date)
	}
	if months < 0 {
		months = 0
	}

	soldDelta, sold := rollHistory(s.SoldHistory, obs.Sold, obs.PrevSold, months)
	boughtDelta, bought := rollHistory(s.BoughtHistory, obs.Bought, obs.PrevBought, months)

	next := s
	next.SoldHistory = sold
	next.BoughtHistory = bought
	if days > 0 {
		next.RecentDailySales = s.RecentDailySales.PushFront(SalesEntry{Delta: soldDelta, Days: days})
	}
	next = next.WithStockDelta(boughtDelta - soldDelta)
	next.LastUpdate = obs.Date
	return next
}

// WithStockDelta returns the stats with stock moved by delta. Unknown stock
// starts from zero.
func (s ProductStats) WithStockDelta(delta int) ProductStats {
	stock := 0
	if s.Stock != nil {
		stock = *s.Stock
	}
	stock += delta
	s.Stock = &stock
	return s
}

// WithVerifiedStock returns the stats with a human-confirmed stock
func (s ProductStats) WithVerifiedStock(stock int, date time.Time) ProductStats {
	s.Stock = &stock
	s.Verified = true
	s.LastUpdate = date
	return s
}

func rollHistory(h MonthlyHistory, current int, prev *int, months int) (int, MonthlyHistory) {
	stored := h.At(0)
	if months == 0 {
		return current - stored, h.WithCurrent(current)
	}

	final := stored
	if prev != nil {
		final = *prev
	}
	delta := current + (final - stored)
	next := h.WithCurrent(final).PadFront(months - 1).PushFront(current)
	return delta, next
}
