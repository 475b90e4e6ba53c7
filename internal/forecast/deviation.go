package forecast

import (
	"math"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// trailing month weights for months 1..3 of the monthly deviation baseline
var trailingWeights = [3]float64{0.7, 0.2, 0.1}

// Signals computes the deviation and trend of a product. series is the
// newest-first daily ledger, already stripped of any recent promotion span;
// it is used for the deviation when the rate came from the ledger. A
// history shorter than MinHistoryMonths yields zero signals with DataGap set.
func (e *Engine) Signals(sold, bought domain.MonthlyHistory, series []float64, source RateSource, cal Calendar) Signals {
	if sold.Len() < e.cfg.MinHistoryMonths {
		return Signals{DataGap: true}
	}

	var deviation float64
	if source == SourceLedger {
		deviation = e.LedgerDeviation(series)
	} else {
		deviation = e.MonthlyDeviation(sold, cal)
	}

	return Signals{
		Deviation: deviation,
		Trend:     FindTrend(sold, bought, cal),
	}
}

// ComputeDeviation returns the percent change of the recent median over the
// baseline median, clamped to ±MaxDeviation. It is 0 when the baseline
// median is 0.
func (e *Engine) ComputeDeviation(recent, baseline []float64) float64 {
	base := median(baseline)
	if base == 0 {
		return 0
	}
	return e.clamp((median(recent) - base) / base * 100)
}

// LedgerDeviation splits a newest-first daily series into the RecentWindow
// newest days and up to BaselineWindow following days. Series shorter than
// MinLedgerDays yield 0.
func (e *Engine) LedgerDeviation(series []float64) float64 {
	if len(series) < e.cfg.MinLedgerDays {
		return 0
	}
	recentEnd := e.cfg.RecentWindow
	if recentEnd > len(series) {
		recentEnd = len(series)
	}
	baseEnd := recentEnd + e.cfg.BaselineWindow
	if baseEnd > len(series) {
		baseEnd = len(series)
	}
	return e.ComputeDeviation(series[:recentEnd], series[recentEnd:baseEnd])
}

// MonthlyDeviation compares the current month, completed with a share of
// last month for the days not yet observed, against the weighted trailing
// three months. With BlendHistoryMonths of history the same comparison one
// year earlier is blended in, the current year weighing at least half.
func (e *Engine) MonthlyDeviation(sold domain.MonthlyHistory, cal Calendar) float64 {
	current := e.monthDeviation(sold, cal, true)
	if sold.Len() < e.cfg.BlendHistoryMonths {
		return current
	}

	lastYear := e.monthDeviation(sold.From(12), cal, false)
	wCurrent := math.Max(0.5, float64(cal.Day())/float64(cal.DaysInMonth()))
	return e.clamp(round2(wCurrent*current + (1-wCurrent)*lastYear))
}

func (e *Engine) monthDeviation(sold domain.MonthlyHistory, cal Calendar, inProgress bool) float64 {
	thisMonth := float64(sold.At(0))
	if inProgress {
		days := float64(cal.DaysInMonth())
		missing := days - float64(cal.Day()-1)
		thisMonth += missing / days * float64(sold.At(1))
	}

	var recent float64
	for i, w := range trailingWeights {
		recent += w * float64(sold.At(i+1))
	}
	if recent == 0 {
		return 0
	}
	return e.clamp(round2((thisMonth - recent) / recent * 100))
}

func (e *Engine) clamp(v float64) float64 {
	return math.Max(-e.cfg.MaxDeviation, math.Min(e.cfg.MaxDeviation, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
