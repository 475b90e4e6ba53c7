package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DB is a connection able to run a function inside a transaction
type DB interface {
	sqlx.ExtContext
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	Close() error
}

// Store is a TimeSeriesStore over a SQL database
type Store struct {
	db      DB
	dialect Dialect
}

var _ repository.TimeSeriesStore = (*Store)(nil)

// New creates a store on db. Call Migrate before first use on an empty
// database.
func New(db DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates the tables when they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.Name, err)
		}
	}
	log.Debug().Str("dialect", s.dialect.Name).Msg("schema ready")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type productRow struct {
	Code    int `db:"cod"`
	Variant int `db:"v"`
	domain.ProductVariant
}

func (r productRow) variant() domain.ProductVariant {
	p := r.ProductVariant
	p.Key = domain.ProductKey{Code: r.Code, Variant: r.Variant}
	return p
}

type statsRow struct {
	SoldHistory      domain.MonthlyHistory `db:"sold_history"`
	BoughtHistory    domain.MonthlyHistory `db:"bought_history"`
	RecentDailySales domain.SalesLedger    `db:"recent_daily_sales"`
	Stock            sql.NullInt64         `db:"stock"`
	Verified         sql.NullBool          `db:"verified"`
	LastUpdate       sql.NullTime          `db:"last_update"`
}

func (r statsRow) stats() domain.ProductStats {
	out := domain.ProductStats{
		SoldHistory:      r.SoldHistory,
		BoughtHistory:    r.BoughtHistory,
		RecentDailySales: r.RecentDailySales,
		Verified:         r.Verified.Bool,
	}
	if r.Stock.Valid {
		stock := int(r.Stock.Int64)
		out.Stock = &stock
	}
	if r.LastUpdate.Valid {
		out.LastUpdate = r.LastUpdate.Time
	}
	return out
}

type sectorRow struct {
	productRow
	statsRow
	HasStats bool `db:"has_stats"`
}

type promotionRow struct {
	Code          int             `db:"cod"`
	Variant       int             `db:"v"`
	StandardPrice decimal.Decimal `db:"standard_price"`
	SalePrice     decimal.Decimal `db:"sale_price"`
	StartDate     time.Time       `db:"start_date"`
	EndDate       time.Time       `db:"end_date"`
}

type lossRow struct {
	Code        int                   `db:"cod"`
	Variant     int                   `db:"v"`
	LossType    string                `db:"loss_type"`
	History     domain.MonthlyHistory `db:"history"`
	LastUpdated sql.NullTime          `db:"last_updated"`
}

func (r lossRow) ledger() domain.LossLedger {
	return domain.LossLedger{
		Key:         domain.ProductKey{Code: r.Code, Variant: r.Variant},
		Type:        domain.LossType(r.LossType),
		History:     r.History,
		LastUpdated: r.LastUpdated.Time,
	}
}

const (
	productColumns = `p.cod, p.v, p.descrizione, p.pz_x_collo, p.rapp, p.settore, p.disponibilita, p.purge_flag, p.minimum_stock_override`
	statsColumns   = `sold_history, bought_history, recent_daily_sales, stock, verified, last_update`
)

func (s *Store) GetStats(ctx context.Context, key domain.ProductKey) (*domain.ProductStats, error) {
	stats, err := s.loadStats(ctx, s.db, key, false)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Store) GetProduct(ctx context.Context, key domain.ProductKey) (*domain.ProductVariant, error) {
	p, err := s.loadProduct(ctx, s.db, key, false)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsBySector(ctx context.Context, sector string) ([]domain.SectorProduct, error) {
	query := `
		SELECT ` + productColumns + `,
			st.sold_history, st.bought_history, st.recent_daily_sales,
			st.stock, st.verified, st.last_update,
			st.cod IS NOT NULL AS has_stats
		FROM products p
		LEFT JOIN product_stats st ON st.cod = p.cod AND st.v = p.v
		WHERE p.settore = ?
		ORDER BY p.cod, p.v
	`

	var rows []sectorRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), sector); err != nil {
		return nil, fmt.Errorf("failed to get products of sector %s: %w", sector, err)
	}

	out := make([]domain.SectorProduct, 0, len(rows))
	for _, r := range rows {
		sp := domain.SectorProduct{ProductVariant: r.variant()}
		if r.HasStats {
			stats := r.stats()
			sp.Stats = &stats
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s *Store) GetBlacklist(ctx context.Context, sector string) (domain.Blacklist, error) {
	var keys []struct {
		Code    int `db:"cod"`
		Variant int `db:"v"`
	}
	query := `SELECT cod, v FROM blacklist WHERE settore = ?`
	if err := sqlx.SelectContext(ctx, s.db, &keys, s.db.Rebind(query), sector); err != nil {
		return nil, fmt.Errorf("failed to get blacklist of sector %s: %w", sector, err)
	}

	out := domain.NewBlacklist()
	for _, k := range keys {
		out[domain.ProductKey{Code: k.Code, Variant: k.Variant}] = struct{}{}
	}
	return out, nil
}

func (s *Store) promotions(ctx context.Context) ([]domain.SaleWindow, error) {
	var rows []promotionRow
	query := `SELECT cod, v, standard_price, sale_price, start_date, end_date FROM promotions`
	if err := sqlx.SelectContext(ctx, s.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get promotions: %w", err)
	}

	out := make([]domain.SaleWindow, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SaleWindow{
			Key:           domain.ProductKey{Code: r.Code, Variant: r.Variant},
			StandardPrice: r.StandardPrice,
			SalePrice:     r.SalePrice,
			Start:         r.StartDate,
			End:           r.EndDate,
		})
	}
	return out, nil
}

func (s *Store) GetActivePromotions(ctx context.Context, today time.Time) (map[domain.ProductKey]domain.SaleWindow, error) {
	windows, err := s.promotions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ProductKey]domain.SaleWindow)
	for _, w := range windows {
		if w.ActiveOn(today) {
			out[w.Key] = w
		}
	}
	return out, nil
}

func (s *Store) GetRecentlyEndedPromotions(ctx context.Context, today time.Time, windowDays int) (map[domain.ProductKey]domain.EndedPromotion, error) {
	windows, err := s.promotions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ProductKey]domain.EndedPromotion)
	for _, w := range windows {
		since := domain.DaysBetween(w.End, today)
		if since > 0 && since <= windowDays {
			out[w.Key] = w.Ended(today)
		}
	}
	return out, nil
}

func (s *Store) GetInternalUseLosses(ctx context.Context) ([]domain.LossLedger, error) {
	var rows []lossRow
	query := `
		SELECT cod, v, loss_type, history, last_updated
		FROM losses
		WHERE loss_type = ?
		ORDER BY cod, v
	`
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), string(domain.LossInternal)); err != nil {
		return nil, fmt.Errorf("failed to get internal losses: %w", err)
	}

	out := make([]domain.LossLedger, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ledger())
	}
	return out, nil
}

func (s *Store) lock(query string, forUpdate bool) string {
	if forUpdate && s.dialect.LockRows {
		query += " FOR UPDATE"
	}
	return query
}

func (s *Store) loadProduct(ctx context.Context, q sqlx.ExtContext, key domain.ProductKey, forUpdate bool) (domain.ProductVariant, error) {
	var row productRow
	query := s.lock(`SELECT `+productColumns+` FROM products p WHERE p.cod = ? AND p.v = ?`, forUpdate)
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), key.Code, key.Variant)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductVariant{}, fmt.Errorf("product %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProductVariant{}, fmt.Errorf("failed to get product %s: %w", key, err)
	}
	return row.variant(), nil
}

func (s *Store) loadStats(ctx context.Context, q sqlx.ExtContext, key domain.ProductKey, forUpdate bool) (domain.ProductStats, error) {
	var row statsRow
	query := s.lock(`SELECT `+statsColumns+` FROM product_stats WHERE cod = ? AND v = ?`, forUpdate)
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), key.Code, key.Variant)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductStats{}, fmt.Errorf("stats of %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProductStats{}, fmt.Errorf("failed to get stats of %s: %w", key, err)
	}
	return row.stats(), nil
}

func (s *Store) loadLoss(ctx context.Context, q sqlx.ExtContext, key domain.ProductKey, lossType domain.LossType) (domain.LossLedger, error) {
	var row lossRow
	query := s.lock(`SELECT cod, v, loss_type, history, last_updated FROM losses WHERE cod = ? AND v = ? AND loss_type = ?`, true)
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), key.Code, key.Variant, string(lossType))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LossLedger{Key: key, Type: lossType}, nil
	}
	if err != nil {
		return domain.LossLedger{}, fmt.Errorf("failed to get %s losses of %s: %w", lossType, key, err)
	}
	return row.ledger(), nil
}
