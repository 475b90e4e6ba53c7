package restock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/autorestock/internal/adjuster"
	"github.com/andresuchdata/autorestock/internal/decider"
	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/forecast"
	"github.com/andresuchdata/autorestock/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// lowSaleRate is the daily rate at or under which an ordered product is
// listed as a low seller
const lowSaleRate = 0.2

// Config holds the run policy of the orchestrator
type Config struct {
	PerishableSectors []string
	MinimumStockBase  int
	Forecast          forecast.Config
	Adjuster          adjuster.Config
}

// DefaultConfig returns the production policy
func DefaultConfig() Config {
	return Config{
		MinimumStockBase: decider.DefaultMinimumStockBase,
		Forecast:         forecast.DefaultConfig(),
		Adjuster:         adjuster.DefaultConfig(),
	}
}

// RunInput identifies one run over a sector
type RunInput struct {
	RunID    string
	Sector   string
	Today    time.Time
	Coverage float64
}

// Trace is the full reasoning behind the verdict on one product
type Trace struct {
	Key              domain.ProductKey   `json:"key"`
	Gate             Gate                `json:"gate"`
	Rate             forecast.Rate       `json:"rate"`
	Signals          forecast.Signals    `json:"signals"`
	Adjustment       adjuster.Adjustment `json:"adjustment"`
	MinimumStockBase int                 `json:"minimum_stock_base"`
	Decision         decider.Decision    `json:"decision"`
}

// Orchestrator runs the restock decision pipeline over the products of a
// sector: gating, forecasting, adjusting and deciding.
type Orchestrator struct {
	store   repository.TimeSeriesReader
	gater   *Gater
	engine  *forecast.Engine
	adj     *adjuster.Adjuster
	decider decider.QuantityDecider
	cfg     Config
}

// NewOrchestrator creates a new orchestrator using the category N decider
func NewOrchestrator(store repository.TimeSeriesReader, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gater:   NewGater(cfg.PerishableSectors),
		engine:  forecast.NewEngine(cfg.Forecast),
		adj:     adjuster.New(cfg.Adjuster),
		decider: decider.NewCategoryN(),
		cfg:     cfg,
	}
}

// runRefs is the read-only data shared by every product of a run
type runRefs struct {
	today     time.Time
	coverage  float64
	blacklist domain.Blacklist
	active    map[domain.ProductKey]domain.SaleWindow
	ended     map[domain.ProductKey]domain.EndedPromotion
	losses    map[domain.ProductKey]domain.LossLedger
}

// Run decides the orders of a sector. Product faults are recorded in the
// decision set; only failures to read the run inputs are returned, wrapped
// in ErrRunFailure.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*domain.DecisionSet, *RunStats, error) {
	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	logger := log.With().Str("run_id", in.RunID).Str("sector", in.Sector).Logger()

	products, err := o.store.GetProductsBySector(ctx, in.Sector)
	if err != nil {
		return nil, nil, runFailure(fmt.Sprintf("read products of sector %s", in.Sector), err)
	}
	refs, err := o.loadRefs(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(products, func(i, j int) bool {
		a, b := products[i].Key, products[j].Key
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Variant < b.Variant
	})

	logger.Info().Int("products", len(products)).Float64("coverage", in.Coverage).Msg("restock run started")

	set := &domain.DecisionSet{
		Sector:   in.Sector,
		Date:     in.Today,
		Coverage: in.Coverage,
	}
	stats := &RunStats{}

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, nil, runFailure("run cancelled", err)
		}

		trace, err := o.safeEvaluate(p, refs, logger)
		if err != nil {
			stats.Errors++
			set.Errors = append(set.Errors, domain.ProductNote{Key: p.Key, Description: p.Description, Reason: err.Error()})
			logger.Error().Err(err).Int("cod", p.Key.Code).Int("var", p.Key.Variant).Msg("product evaluation failed")
			continue
		}
		o.collect(set, stats, p, trace)
	}

	stats.Log(logger)
	return set, stats, nil
}

// Explain returns the trace of a single product without running the sector.
// A product outside in.Sector is reported as not found.
func (o *Orchestrator) Explain(ctx context.Context, in RunInput, key domain.ProductKey) (*Trace, error) {
	product, err := o.store.GetProduct(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", key, err)
	}
	stats, err := o.store.GetStats(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load stats of %s: %w", key, err)
	}
	if in.Sector != "" && in.Sector != product.Sector {
		return nil, fmt.Errorf("product %s in sector %s: %w", key, in.Sector, domain.ErrNotFound)
	}
	in.Sector = product.Sector
	refs, err := o.loadRefs(ctx, in)
	if err != nil {
		return nil, err
	}

	trace, err := o.safeEvaluate(domain.SectorProduct{ProductVariant: *product, Stats: stats}, refs, log.Logger)
	if err != nil {
		return nil, err
	}
	return &trace, nil
}

func (o *Orchestrator) loadRefs(ctx context.Context, in RunInput) (*runRefs, error) {
	blacklist, err := o.store.GetBlacklist(ctx, in.Sector)
	if err != nil {
		return nil, runFailure("read blacklist", err)
	}
	active, err := o.store.GetActivePromotions(ctx, in.Today)
	if err != nil {
		return nil, runFailure("read active promotions", err)
	}
	ended, err := o.store.GetRecentlyEndedPromotions(ctx, in.Today, o.cfg.Adjuster.EndedPromotionWindowDays)
	if err != nil {
		return nil, runFailure("read ended promotions", err)
	}
	ledgers, err := o.store.GetInternalUseLosses(ctx)
	if err != nil {
		return nil, runFailure("read internal losses", err)
	}

	losses := make(map[domain.ProductKey]domain.LossLedger, len(ledgers))
	for _, l := range ledgers {
		losses[l.Key] = l
	}

	return &runRefs{
		today:     in.Today,
		coverage:  in.Coverage,
		blacklist: blacklist,
		active:    active,
		ended:     ended,
		losses:    losses,
	}, nil
}

func (o *Orchestrator) safeEvaluate(p domain.SectorProduct, refs *runRefs, logger zerolog.Logger) (trace Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ComputationError{Key: p.Key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	trace, err = o.evaluate(p, refs, logger)
	if err != nil {
		return trace, &ComputationError{Key: p.Key, Err: err}
	}
	return trace, nil
}

func (o *Orchestrator) evaluate(p domain.SectorProduct, refs *runRefs, logger zerolog.Logger) (Trace, error) {
	trace := Trace{Key: p.Key}

	// gating
	trace.Gate = o.gater.Evaluate(p, refs.blacklist)
	if trace.Gate.Kind != GateProceed {
		return trace, nil
	}
	stats := *p.Stats

	// forecasting
	var losses *domain.LossLedger
	if l, ok := refs.losses[p.Key]; ok {
		losses = &l
	}
	sold := o.adj.IntegrateInternalLosses(stats.SoldHistory, losses, refs.today)
	cal := forecast.NewCalendar(refs.today)

	trace.Rate = o.engine.EstimateDailyRate(sold, stats.RecentDailySales, cal)

	var ended *domain.EndedPromotion
	if e, ok := refs.ended[p.Key]; ok {
		ended = &e
	}
	lag := domain.DaysBetween(stats.LastUpdate, refs.today)
	series := o.adj.ExcludePromotion(stats.RecentDailySales.DailySeries(), ended, lag)
	trace.Signals = o.engine.Signals(sold, stats.BoughtHistory, series, trace.Rate.Source, cal)
	if trace.Signals.DataGap {
		logger.Debug().Int("cod", p.Key.Code).Int("var", p.Key.Variant).
			Int("months", sold.Len()).Msg("deviation and trend data not available")
	}

	// adjusting
	var window *domain.SaleWindow
	if w, ok := refs.active[p.Key]; ok {
		window = &w
	}
	trace.Adjustment = o.adj.Adjust(trace.Rate.Daily, refs.coverage, window, refs.today)
	if trace.Adjustment.Skip {
		trace.Gate = Gate{Kind: GateSkip, Reason: trace.Adjustment.SkipReason, Anomalous: trace.Gate.Anomalous}
		return trace, nil
	}

	// deciding
	trace.MinimumStockBase = o.cfg.MinimumStockBase
	if p.MinimumStockOverride != nil {
		trace.MinimumStockBase = *p.MinimumStockOverride
	}

	decision, err := o.decider.Decide(decider.Input{
		PackageSize:      p.OrderPackageSize(),
		DeviationPct:     trace.Signals.Deviation,
		DailyRate:        trace.Rate.Daily,
		BaselineRate:     trace.Rate.Baseline,
		RequiredStock:    trace.Adjustment.RequiredStock,
		CurrentStock:     *stats.Stock,
		DiscountPct:      trace.Adjustment.Promotion.Discount(),
		MinimumStockBase: trace.MinimumStockBase,
		Trend:            trace.Signals.Trend,
	})
	if err != nil {
		return trace, err
	}
	trace.Decision = decision

	logger.Debug().
		Int("cod", p.Key.Code).
		Int("var", p.Key.Variant).
		Float64("daily_rate", trace.Rate.Daily).
		Str("rate_source", string(trace.Rate.Source)).
		Float64("growth_ratio", trace.Rate.GrowthRatio).
		Float64("deviation", trace.Signals.Deviation).
		Int("trend", trace.Signals.Trend).
		Float64("required", trace.Adjustment.RequiredStock).
		Int("rule", decision.RuleID).
		Str("outcome", string(decision.Outcome)).
		Msg("product decided")

	return trace, nil
}

func (o *Orchestrator) collect(set *domain.DecisionSet, stats *RunStats, p domain.SectorProduct, trace Trace) {
	note := domain.ProductNote{Key: p.Key, Description: p.Description, Reason: trace.Gate.Reason}

	stats.recordGate(trace.Gate)
	if trace.Gate.Anomalous {
		set.AnomalousStock = append(set.AnomalousStock, domain.ProductNote{
			Key: p.Key, Description: p.Description, Reason: "negative verified stock",
		})
	}
	if trace.Signals.DataGap {
		stats.DataGaps++
	}

	switch trace.Gate.Kind {
	case GateExclude:
		return
	case GateSkip:
		set.Skipped = append(set.Skipped, note)
		return
	case GateZombie:
		set.Zombies = append(set.Zombies, note)
		return
	case GateNew:
		set.NewProducts = append(set.NewProducts, note)
		return
	}

	if !trace.Decision.Ordered() {
		stats.Fail++
		return
	}

	qty := *trace.Decision.Quantity
	stats.Success++
	stats.Packages += qty
	set.Orders = append(set.Orders, domain.OrderLine{
		Key:         p.Key,
		Description: p.Description,
		Quantity:    qty,
		DiscountPct: trace.Adjustment.Promotion.Discount(),
		RuleID:      trace.Decision.RuleID,
	})

	if trace.Rate.Daily <= lowSaleRate {
		stats.LowSale++
		set.LowSale = append(set.LowSale, domain.ProductNote{Key: p.Key, Description: p.Description})
	}
}
