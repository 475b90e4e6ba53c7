package forecast

import (
	"math"
	"sort"

	"github.com/andresuchdata/autorestock/internal/domain"
)

const maxGrowthRatio = 2

// Engine computes demand forecasts from stored time series. It holds no
// state besides its configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates a new forecast engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// EstimateDailyRate returns the daily demand of a product. The recent sales
// ledger is preferred when it covers at least MinLedgerDays days, otherwise
// the monthly history is blended with a prior.
func (e *Engine) EstimateDailyRate(sold domain.MonthlyHistory, ledger domain.SalesLedger, cal Calendar) Rate {
	rate := e.monthlyRate(sold, cal)

	series := ledger.DailySeries()
	if len(series) >= e.cfg.MinLedgerDays {
		rate.Daily = e.RateFromDailySeries(series)
		rate.Source = SourceLedger
	}

	return rate
}

// RateFromDailySeries returns the recency-weighted mean of a newest-first
// daily series after capping outliers. The weight of the value aged a days
// is exp(-ln2/halfLife × a).
func (e *Engine) RateFromDailySeries(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	capped := e.CapOutliers(series)

	decay := math.Ln2 / e.cfg.HalfLifeDays
	var weighted, total float64
	for age, v := range capped {
		w := math.Exp(-decay * float64(age))
		weighted += w * v
		total += w
	}
	return weighted / total
}

// CapOutliers replaces every value above OutlierFactor × the percentile
// reference with the largest value that is not an outlier. Positions are
// preserved. The result is a fixed point: capping it again changes nothing.
func (e *Engine) CapOutliers(series []float64) []float64 {
	out := make([]float64, len(series))
	copy(out, series)

	ref := percentile(series, e.cfg.OutlierPercentile)
	if ref <= 0 {
		return out
	}
	limit := e.cfg.OutlierFactor * ref

	ceiling := math.Inf(-1)
	for _, v := range series {
		if v <= limit && v > ceiling {
			ceiling = v
		}
	}
	if math.IsInf(ceiling, -1) {
		return out
	}

	for i, v := range out {
		if v > limit {
			out[i] = ceiling
		}
	}
	return out
}

// monthlyRate blends the rate observed so far this month with a prior. The
// prior weighs (1-progress)^3, so it fades as the month advances.
func (e *Engine) monthlyRate(sold domain.MonthlyHistory, cal Calendar) Rate {
	daysThisMonth := float64(cal.DaysInMonth())
	daysPrevMonth := float64(cal.DaysInPrevMonth())

	// 1. Observation progress through the month
	observed := cal.Day() - 1
	progress := math.Min(1, float64(observed)/daysThisMonth)
	currentRate := float64(sold.At(0)) / math.Max(1, float64(observed))

	// 2. Prior: last month's rate, or the current rate for new products
	priorRate := currentRate
	if sold.Len() > 1 {
		priorRate = float64(sold.At(1)) / daysPrevMonth
	}

	// 3. Same month last year, used as the minimum stock baseline
	baseline := float64(sold.At(12)) / daysThisMonth

	// 4. Growth ratio, diagnostic only
	growth := 1.0
	if prevLastYear := float64(sold.At(13)) / daysPrevMonth; prevLastYear > 0 {
		growth = math.Min(maxGrowthRatio, priorRate/prevLastYear)
	}

	// 5. Blend
	wPrior := math.Pow(1-progress, 3)
	daily := (1-wPrior)*currentRate + wPrior*priorRate

	return Rate{
		Daily:       daily,
		Baseline:    baseline,
		GrowthRatio: growth,
		Source:      SourceMonthly,
	}
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// median returns the median of values, 0 when empty
func median(values []float64) float64 {
	return percentile(values, 50)
}
