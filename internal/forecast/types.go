package forecast

import "time"

// Config holds the tunables of the forecast engine
type Config struct {
	HalfLifeDays       float64 // recency half-life of the daily ledger
	MinLedgerDays      int     // ledger days required before the ledger path is used
	OutlierPercentile  float64 // percentile used as outlier reference
	OutlierFactor      float64 // values above factor × percentile are capped
	RecentWindow       int     // newest days compared by the ledger deviation
	BaselineWindow     int     // days after the recent window used as baseline
	MaxDeviation       float64 // deviation clamp, in percent
	MinHistoryMonths   int     // months required for deviation and trend
	BlendHistoryMonths int     // months required to blend last year's deviation
}

// DefaultConfig returns the production tunables
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:       14,
		MinLedgerDays:      14,
		OutlierPercentile:  95,
		OutlierFactor:      10,
		RecentWindow:       8,
		BaselineWindow:     22,
		MaxDeviation:       50,
		MinHistoryMonths:   4,
		BlendHistoryMonths: 16,
	}
}

// RateSource tells which path produced a daily rate
type RateSource string

const (
	SourceLedger  RateSource = "ledger"
	SourceMonthly RateSource = "monthly"
)

// Rate is the daily demand estimate of a product
type Rate struct {
	Daily       float64
	Baseline    float64 // same month last year, per day
	GrowthRatio float64 // last month over same month last year, capped at 2, diagnostic only
	Source      RateSource
}

// Signals are the short-term deviation and trend of a product
type Signals struct {
	Deviation float64
	Trend     int
	DataGap   bool // history too short for deviation and trend
}

// Calendar is the position of a run in the month
type Calendar struct {
	Today time.Time
}

// NewCalendar returns a calendar for the given date
func NewCalendar(today time.Time) Calendar {
	return Calendar{Today: today}
}

// Day returns the day of the month
func (c Calendar) Day() int { return c.Today.Day() }

// DaysInMonth returns the length of the current month
func (c Calendar) DaysInMonth() int {
	return daysIn(c.Today.Year(), c.Today.Month())
}

// DaysInPrevMonth returns the length of the previous month
func (c Calendar) DaysInPrevMonth() int {
	first := time.Date(c.Today.Year(), c.Today.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return daysIn(prev.Year(), prev.Month())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
