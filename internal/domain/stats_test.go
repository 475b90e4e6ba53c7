package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestApplyObservationSameMonth(t *testing.T) {
	stats := ProductStats{
		SoldHistory:   NewMonthlyHistory(10, 30),
		BoughtHistory: NewMonthlyHistory(12, 24),
		Stock:         intPtr(20),
		LastUpdate:    day(2025, 3, 10),
	}

	next := stats.ApplyObservation(Observation{Sold: 14, Bought: 24, Date: day(2025, 3, 12)})

	if got := next.SoldHistory.Values(); !reflect.DeepEqual(got, []int{14, 30}) {
		t.Errorf("sold = %v", got)
	}
	if got := next.BoughtHistory.Values(); !reflect.DeepEqual(got, []int{24, 24}) {
		t.Errorf("bought = %v", got)
	}
	// stock 20 + 12 bought - 4 sold
	if *next.Stock != 28 {
		t.Errorf("stock = %d, want 28", *next.Stock)
	}
	want := []SalesEntry{{Delta: 4, Days: 2}}
	if got := next.RecentDailySales.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("ledger = %v, want %v", got, want)
	}
	if !next.LastUpdate.Equal(day(2025, 3, 12)) {
		t.Errorf("last update = %v", next.LastUpdate)
	}
	if *stats.Stock != 20 {
		t.Errorf("original stats mutated: stock %d", *stats.Stock)
	}
}

func TestApplyObservationMonthRoll(t *testing.T) {
	stats := ProductStats{
		SoldHistory:   NewMonthlyHistory(40, 30),
		BoughtHistory: NewMonthlyHistory(36, 30),
		Stock:         intPtr(10),
		LastUpdate:    day(2025, 3, 29),
	}

	next := stats.ApplyObservation(Observation{
		Sold:       3,
		Bought:     0,
		PrevSold:   intPtr(45),
		PrevBought: intPtr(36),
		Date:       day(2025, 4, 2),
	})

	if got := next.SoldHistory.Values(); !reflect.DeepEqual(got, []int{3, 45, 30}) {
		t.Errorf("sold = %v", got)
	}
	if got := next.BoughtHistory.Values(); !reflect.DeepEqual(got, []int{0, 36, 30}) {
		t.Errorf("bought = %v", got)
	}
	// sold delta 3 + (45-40) = 8, bought delta 0
	if *next.Stock != 2 {
		t.Errorf("stock = %d, want 2", *next.Stock)
	}
	if e := next.RecentDailySales.Entries()[0]; e.Delta != 8 || e.Days != 4 {
		t.Errorf("ledger head = %+v, want {8 4}", e)
	}
}

func TestApplyObservationSkippedMonthsArePadded(t *testing.T) {
	stats := ProductStats{
		SoldHistory: NewMonthlyHistory(5),
		Stock:       intPtr(0),
		LastUpdate:  day(2025, 1, 20),
	}

	next := stats.ApplyObservation(Observation{Sold: 2, Date: day(2025, 4, 1)})

	if got := next.SoldHistory.Values(); !reflect.DeepEqual(got, []int{2, 0, 0, 5}) {
		t.Errorf("sold = %v, want [2 0 0 5]", got)
	}
}

func TestApplyObservationFirstReading(t *testing.T) {
	next := NewProductStats().ApplyObservation(Observation{Sold: 3, Bought: 12, Date: day(2025, 5, 5)})

	if *next.Stock != 9 {
		t.Errorf("stock = %d, want 9", *next.Stock)
	}
	if next.RecentDailySales.Len() != 0 {
		t.Errorf("ledger should stay empty on first reading, got %v", next.RecentDailySales.Entries())
	}
}

func TestLossLedgerAlignment(t *testing.T) {
	ledger := LossLedger{
		Type:        LossInternal,
		History:     NewMonthlyHistory(2, 1),
		LastUpdated: day(2025, 1, 15),
	}

	tests := []struct {
		name  string
		today time.Time
		want  []int
	}{
		{"same month", day(2025, 1, 31), []int{2, 1}},
		{"one month later", day(2025, 2, 1), []int{0, 2, 1}},
		{"across year", day(2026, 1, 1), append(make([]int, 12), 2, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ledger.AlignedTo(tt.today).Values(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AlignedTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLossLedgerRecord(t *testing.T) {
	ledger := LossLedger{History: NewMonthlyHistory(2), LastUpdated: day(2025, 1, 15)}

	same := ledger.Record(3, day(2025, 1, 20))
	if got := same.History.Values(); !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("same month = %v", got)
	}

	later := ledger.Record(3, day(2025, 3, 2))
	if got := later.History.Values(); !reflect.DeepEqual(got, []int{3, 0, 2}) {
		t.Errorf("later = %v", got)
	}

	fresh := LossLedger{}.Record(1, day(2025, 3, 2))
	if got := fresh.History.Values(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("fresh = %v", got)
	}
}

func TestSaleWindowDiscount(t *testing.T) {
	tests := []struct {
		name     string
		std      string
		sale     string
		expected float64
	}{
		{"regular", "2.50", "2.00", 20},
		{"rounded", "3.00", "2.00", 33.33},
		{"no discount", "2.00", "2.00", DefaultDiscountPct},
		{"sale above standard", "2.00", "2.50", DefaultDiscountPct},
		{"missing standard", "0", "1.00", DefaultDiscountPct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := SaleWindow{
				StandardPrice: decimal.RequireFromString(tt.std),
				SalePrice:     decimal.RequireFromString(tt.sale),
			}
			if got := w.DiscountPct(); got != tt.expected {
				t.Errorf("DiscountPct = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSaleWindowBuffWindow(t *testing.T) {
	// ten days: threshold ceil(6.0) = 6
	w := SaleWindow{Start: day(2025, 6, 1), End: day(2025, 6, 10)}

	tests := []struct {
		day  int
		want bool
	}{
		{1, true},
		{6, true},
		{7, false},
		{10, false},
	}
	for _, tt := range tests {
		if got := w.InBuffWindow(day(2025, 6, tt.day)); got != tt.want {
			t.Errorf("day %d: InBuffWindow = %v, want %v", tt.day, got, tt.want)
		}
	}
	if w.InBuffWindow(day(2025, 5, 31)) {
		t.Error("day before start must not be buffed")
	}

	// seven days: threshold ceil(4.2) = 5
	short := SaleWindow{Start: day(2025, 6, 1), End: day(2025, 6, 7)}
	if !short.InBuffWindow(day(2025, 6, 5)) {
		t.Error("day 5 of 7 should be buffed")
	}
	if short.InBuffWindow(day(2025, 6, 6)) {
		t.Error("day 6 of 7 should not be buffed")
	}
}

func TestSaleWindowEnded(t *testing.T) {
	w := SaleWindow{Start: day(2025, 6, 1), End: day(2025, 6, 10)}
	ended := w.Ended(day(2025, 6, 14))
	if ended.DaysLasted != 10 || ended.DaysSinceEnd != 4 {
		t.Errorf("Ended = %+v", ended)
	}
}
