package forecast

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
)

func calendarOn(y int, m time.Month, d int) Calendar {
	return NewCalendar(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalendar(t *testing.T) {
	tests := []struct {
		name     string
		cal      Calendar
		days     int
		prevDays int
	}{
		{"april", calendarOn(2025, 4, 11), 30, 31},
		{"march leap", calendarOn(2024, 3, 1), 31, 29},
		{"january", calendarOn(2025, 1, 31), 31, 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cal.DaysInMonth(); got != tt.days {
				t.Errorf("DaysInMonth = %d, want %d", got, tt.days)
			}
			if got := tt.cal.DaysInPrevMonth(); got != tt.prevDays {
				t.Errorf("DaysInPrevMonth = %d, want %d", got, tt.prevDays)
			}
		})
	}
}

func TestEstimateDailyRateMonthly(t *testing.T) {
	e := NewEngine(DefaultConfig())

	lastYear := make([]int, 13)
	lastYear[12] = 60

	tests := []struct {
		name     string
		sold     domain.MonthlyHistory
		cal      Calendar
		daily    float64
		baseline float64
	}{
		{"steady", domain.NewMonthlyHistory(20, 62), calendarOn(2025, 4, 11), 2, 0},
		{"first day uses prior", domain.NewMonthlyHistory(0, 31), calendarOn(2025, 4, 1), 1, 0},
		{"new product", domain.NewMonthlyHistory(30), calendarOn(2025, 4, 16), 2, 0},
		{"empty history", domain.NewMonthlyHistory(), calendarOn(2025, 4, 16), 0, 0},
		{"baseline from last year", domain.NewMonthlyHistory(lastYear...), calendarOn(2025, 4, 1), 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := e.EstimateDailyRate(tt.sold, domain.SalesLedger{}, tt.cal)
			if rate.Source != SourceMonthly {
				t.Errorf("Source = %s, want monthly", rate.Source)
			}
			if !approx(rate.Daily, tt.daily) {
				t.Errorf("Daily = %v, want %v", rate.Daily, tt.daily)
			}
			if !approx(rate.Baseline, tt.baseline) {
				t.Errorf("Baseline = %v, want %v", rate.Baseline, tt.baseline)
			}
		})
	}
}

func TestMonthlyRateBlendsTowardObserved(t *testing.T) {
	e := NewEngine(DefaultConfig())
	// prior 1/day, observed 3/day
	sold := domain.NewMonthlyHistory(30, 31)

	early := e.EstimateDailyRate(sold, domain.SalesLedger{}, calendarOn(2025, 4, 11)).Daily
	sold = domain.NewMonthlyHistory(87, 31)
	late := e.EstimateDailyRate(sold, domain.SalesLedger{}, calendarOn(2025, 4, 30)).Daily

	// progress 1/3: w_prior = 8/27
	wantEarly := (1-8.0/27)*3 + 8.0/27*1
	if !approx(early, wantEarly) {
		t.Errorf("early = %v, want %v", early, wantEarly)
	}
	if late <= early || late > 3 {
		t.Errorf("late = %v, expected closer to the observed rate than %v", late, early)
	}
}

func TestGrowthRatioIsCapped(t *testing.T) {
	e := NewEngine(DefaultConfig())
	values := make([]int, 14)
	values[1] = 310
	values[13] = 31

	rate := e.EstimateDailyRate(domain.NewMonthlyHistory(values...), domain.SalesLedger{}, calendarOn(2025, 4, 11))
	if rate.GrowthRatio != maxGrowthRatio {
		t.Errorf("GrowthRatio = %v, want %v", rate.GrowthRatio, maxGrowthRatio)
	}
}

func TestEstimateDailyRateLedger(t *testing.T) {
	e := NewEngine(DefaultConfig())
	sold := domain.NewMonthlyHistory(90, 93)

	full := domain.NewSalesLedger(domain.SalesEntry{Delta: 14, Days: 14})
	rate := e.EstimateDailyRate(sold, full, calendarOn(2025, 4, 11))
	if rate.Source != SourceLedger {
		t.Fatalf("Source = %s, want ledger", rate.Source)
	}
	if !approx(rate.Daily, 1) {
		t.Errorf("Daily = %v, want 1", rate.Daily)
	}

	short := domain.NewSalesLedger(domain.SalesEntry{Delta: 13, Days: 13})
	if got := e.EstimateDailyRate(sold, short, calendarOn(2025, 4, 11)).Source; got != SourceMonthly {
		t.Errorf("short ledger Source = %s, want monthly", got)
	}
}

func TestRateFromDailySeriesWeightsRecentDays(t *testing.T) {
	e := NewEngine(DefaultConfig())

	series := make([]float64, 28)
	for i := 0; i < 14; i++ {
		series[i] = 2
	}
	got := e.RateFromDailySeries(series)

	// newest 14 days carry weight 1 - 2^-1 relative to the first 28 days
	wNew, wAll := 0.0, 0.0
	for a := 0; a < 28; a++ {
		w := math.Exp(-math.Ln2 / 14 * float64(a))
		if a < 14 {
			wNew += w
		}
		wAll += w
	}
	if want := 2 * wNew / wAll; !approx(got, want) {
		t.Errorf("rate = %v, want %v", got, want)
	}
	if got <= 1 {
		t.Errorf("rate = %v, recent days should dominate", got)
	}
}

func TestCapOutliers(t *testing.T) {
	e := NewEngine(DefaultConfig())

	series := make([]float64, 20)
	for i := range series {
		series[i] = 1
	}
	series[3] = 100

	capped := e.CapOutliers(series)
	for i, v := range capped {
		if v != 1 {
			t.Fatalf("capped[%d] = %v, want 1", i, v)
		}
	}
	if series[3] != 100 {
		t.Error("input mutated")
	}

	zeros := make([]float64, 15)
	if got := e.CapOutliers(zeros); !reflect.DeepEqual(got, zeros) {
		t.Errorf("all zero series changed: %v", got)
	}
}

func TestCapOutliersIsFixedPoint(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	for n := 1; n < 40; n++ {
		series := make([]float64, n)
		for i := range series {
			series[i] = float64(rng.Intn(6))
			if rng.Intn(10) == 0 {
				series[i] = float64(rng.Intn(500))
			}
		}

		once := e.CapOutliers(series)
		twice := e.CapOutliers(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("n=%d: capping is not idempotent\nonce:  %v\ntwice: %v", n, once, twice)
		}
		if a, b := e.RateFromDailySeries(series), e.RateFromDailySeries(once); !approx(a, b) {
			t.Fatalf("n=%d: rate changed on capped input: %v vs %v", n, a, b)
		}
	}
}

func TestComputeDeviation(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name     string
		recent   []float64
		baseline []float64
		want     float64
	}{
		{"growth", []float64{5, 5}, []float64{4, 4}, 25},
		{"clamped up", []float64{2, 2, 2}, []float64{1, 1, 1}, 50},
		{"clamped down", []float64{1}, []float64{4}, -50},
		{"zero baseline", []float64{3}, []float64{0, 0}, 0},
		{"empty baseline", []float64{3}, nil, 0},
		{"median resists spike", []float64{2, 2, 90}, []float64{2, 2, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.ComputeDeviation(tt.recent, tt.baseline); !approx(got, tt.want) {
				t.Errorf("ComputeDeviation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLedgerDeviation(t *testing.T) {
	e := NewEngine(DefaultConfig())

	series := make([]float64, 30)
	for i := range series {
		series[i] = 2
		if i < 8 {
			series[i] = 3
		}
	}
	if got := e.LedgerDeviation(series); !approx(got, 50) {
		t.Errorf("30 days: deviation = %v, want 50", got)
	}

	short := make([]float64, 14)
	for i := range short {
		short[i] = 2
		if i < 8 {
			short[i] = 2.5
		}
	}
	if got := e.LedgerDeviation(short); !approx(got, 25) {
		t.Errorf("14 days: deviation = %v, want 25", got)
	}

	if got := e.LedgerDeviation(short[:13]); got != 0 {
		t.Errorf("13 days: deviation = %v, want 0", got)
	}
}

func TestMonthlyDeviation(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cal := calendarOn(2025, 4, 11)

	tests := []struct {
		name string
		sold []int
		want float64
	}{
		// 20 + 20/30×30 = 40 against 30
		{"growth", []int{20, 30, 30, 30}, 33.33},
		{"flat", []int{10, 30, 30, 30}, 0},
		{"no trailing months", []int{10}, 0},
		{"clamped", []int{200, 30, 30, 30}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.MonthlyDeviation(domain.NewMonthlyHistory(tt.sold...), cal); !approx(got, tt.want) {
				t.Errorf("MonthlyDeviation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonthlyDeviationBlendsLastYear(t *testing.T) {
	e := NewEngine(DefaultConfig())
	values := make([]int, 16)
	copy(values, []int{10, 30, 30, 30})
	copy(values[12:], []int{45, 30, 30, 30})

	// current 0, last year 50, current weight 0.5 on day 11
	got := e.MonthlyDeviation(domain.NewMonthlyHistory(values...), calendarOn(2025, 4, 11))
	if !approx(got, 25) {
		t.Errorf("blended deviation = %v, want 25", got)
	}
}

func TestDeviationAlwaysClamped(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		n := rng.Intn(domain.MaxHistoryMonths + 1)
		values := make([]int, n)
		for j := range values {
			values[j] = rng.Intn(1000) - 100
		}
		sold := domain.NewMonthlyHistory(values...)
		cal := calendarOn(2025, time.Month(rng.Intn(12)+1), rng.Intn(28)+1)

		if d := e.MonthlyDeviation(sold, cal); d < -50 || d > 50 {
			t.Fatalf("monthly deviation %v out of range for %v", d, values)
		}

		series := make([]float64, rng.Intn(40))
		for j := range series {
			series[j] = rng.Float64() * 20
		}
		if d := e.LedgerDeviation(series); d < -50 || d > 50 {
			t.Fatalf("ledger deviation %v out of range", d)
		}
	}
}

func TestSignalsDataGap(t *testing.T) {
	e := NewEngine(DefaultConfig())
	sold := domain.NewMonthlyHistory(10, 30, 30)
	bought := domain.NewMonthlyHistory(30, 30, 30)

	s := e.Signals(sold, bought, nil, SourceMonthly, calendarOn(2025, 4, 11))
	if !s.DataGap || s.Deviation != 0 || s.Trend != 0 {
		t.Errorf("Signals = %+v, want data gap with zero signals", s)
	}

	s = e.Signals(domain.NewMonthlyHistory(20, 30, 30, 30), bought, nil, SourceMonthly, calendarOn(2025, 4, 11))
	if s.DataGap {
		t.Error("four months must not be a data gap")
	}
	if !approx(s.Deviation, 33.33) {
		t.Errorf("Deviation = %v, want 33.33", s.Deviation)
	}
}

func TestFindTrend(t *testing.T) {
	cal := calendarOn(2025, 4, 10)

	tests := []struct {
		name   string
		sold   []int
		bought []int
		cal    Calendar
		want   int
	}{
		{"steady build up", []int{1, 1, 1, 1}, []int{3, 3, 3, 3}, cal, 8},
		{"absorbed reversal", []int{1, 1, 1}, []int{3, 0, 4}, cal, 4},
		{"broken by reversal", []int{1, 4, 1}, []int{3, 1, 2}, cal, 0},
		{"zeros skipped", []int{3, 2, 2}, []int{1, 2, 1}, cal, -3},
		{"no movement", []int{2, 1}, []int{2, 5}, cal, 0},
		{"single month", []int{1}, []int{5}, cal, 0},
		{"empty", nil, nil, cal, 0},
		{"first day skips current", []int{9, 1, 1}, []int{0, 2, 2}, calendarOn(2025, 4, 1), 2},
		{"first day with one month", []int{9}, []int{0}, calendarOn(2025, 4, 1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindTrend(domain.NewMonthlyHistory(tt.sold...), domain.NewMonthlyHistory(tt.bought...), tt.cal)
			if got != tt.want {
				t.Errorf("FindTrend = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestShortHistoriesNeverPanic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cal := calendarOn(2025, 2, 1)

	for n := 0; n <= domain.MaxHistoryMonths; n++ {
		values := make([]int, n)
		h := domain.NewMonthlyHistory(values...)
		_ = e.EstimateDailyRate(h, domain.SalesLedger{}, cal)
		_ = e.MonthlyDeviation(h, cal)
		_ = e.Signals(h, h, nil, SourceMonthly, cal)
		_ = FindTrend(h, domain.NewMonthlyHistory(), cal)
	}
}
