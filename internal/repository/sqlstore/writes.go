package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *Store) UpsertProduct(ctx context.Context, p domain.ProductVariant) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO products (
				cod, v, descrizione, pz_x_collo, rapp, settore,
				disponibilita, purge_flag, minimum_stock_override
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (cod, v)
			DO UPDATE SET
				descrizione = excluded.descrizione,
				pz_x_collo = excluded.pz_x_collo,
				rapp = excluded.rapp,
				settore = excluded.settore,
				disponibilita = excluded.disponibilita,
				purge_flag = excluded.purge_flag,
				minimum_stock_override = excluded.minimum_stock_override
		`
		_, err := tx.ExecContext(ctx, tx.Rebind(query),
			p.Key.Code, p.Key.Variant, p.Description, p.PackageSize, p.PackageMultiplier,
			p.Sector, string(p.Availability), p.PurgeFlag, p.MinimumStockOverride,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.Key, err)
		}

		// a product seen for the first time starts with empty stats
		init := `
			INSERT INTO product_stats (cod, v, sold_history, bought_history, recent_daily_sales, stock, verified)
			VALUES (?, ?, '[]', '[]', '[]', 0, ?)
			ON CONFLICT (cod, v) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, tx.Rebind(init), p.Key.Code, p.Key.Variant, false); err != nil {
			return fmt.Errorf("failed to init stats of %s: %w", p.Key, err)
		}
		return nil
	})
}

func (s *Store) UpsertPromotion(ctx context.Context, w domain.SaleWindow) error {
	query := `
		INSERT INTO promotions (cod, v, standard_price, sale_price, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (cod, v)
		DO UPDATE SET
			standard_price = excluded.standard_price,
			sale_price = excluded.sale_price,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		w.Key.Code, w.Key.Variant, w.StandardPrice, w.SalePrice, w.Start, w.End,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert promotion of %s: %w", w.Key, err)
	}
	return nil
}

func (s *Store) AddToBlacklist(ctx context.Context, sector string, key domain.ProductKey) error {
	query := `
		INSERT INTO blacklist (settore, cod, v) VALUES (?, ?, ?)
		ON CONFLICT (settore, cod, v) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), sector, key.Code, key.Variant); err != nil {
		return fmt.Errorf("failed to blacklist %s in %s: %w", key, sector, err)
	}
	return nil
}

func (s *Store) UpdateStats(ctx context.Context, key domain.ProductKey, obs domain.Observation) (domain.ProductStats, error) {
	var next domain.ProductStats
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stats, err := s.loadStats(ctx, tx, key, true)
		if errors.Is(err, domain.ErrNotFound) {
			stats = domain.NewProductStats()
		} else if err != nil {
			return err
		}

		next = stats.ApplyObservation(obs)
		return s.saveStats(ctx, tx, key, next)
	})
	return next, err
}

func (s *Store) RegisterLoss(ctx context.Context, key domain.ProductKey, lossType domain.LossType, qty int, date time.Time) error {
	if !lossType.Valid() {
		return fmt.Errorf("unknown loss type %q", lossType)
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stats, err := s.loadStats(ctx, tx, key, true)
		if err != nil {
			return err
		}
		ledger, err := s.loadLoss(ctx, tx, key, lossType)
		if err != nil {
			return err
		}

		ledger = ledger.Record(qty, date)
		query := `
			INSERT INTO losses (cod, v, loss_type, history, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (cod, v, loss_type)
			DO UPDATE SET history = excluded.history, last_updated = excluded.last_updated
		`
		if _, err := tx.ExecContext(ctx, tx.Rebind(query),
			key.Code, key.Variant, string(lossType), ledger.History, nullTime(ledger.LastUpdated),
		); err != nil {
			return fmt.Errorf("failed to save %s losses of %s: %w", lossType, key, err)
		}

		return s.saveStats(ctx, tx, key, stats.WithStockDelta(-qty))
	})
}

func (s *Store) VerifyStock(ctx context.Context, key domain.ProductKey, stock int, date time.Time) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stats, err := s.loadStats(ctx, tx, key, true)
		if errors.Is(err, domain.ErrNotFound) {
			stats = domain.NewProductStats()
		} else if err != nil {
			return err
		}
		return s.saveStats(ctx, tx, key, stats.WithVerifiedStock(stock, date))
	})
}

func (s *Store) FlagForPurge(ctx context.Context, key domain.ProductKey) (bool, error) {
	var deleted bool
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.loadProduct(ctx, tx, key, true); err != nil {
			return err
		}
		stats, err := s.loadStats(ctx, tx, key, true)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if stats.Stock != nil && *stats.Stock > 0 {
			flag := `UPDATE products SET purge_flag = ? WHERE cod = ? AND v = ?`
			if _, err := tx.ExecContext(ctx, tx.Rebind(flag), true, key.Code, key.Variant); err != nil {
				return fmt.Errorf("failed to flag %s for purge: %w", key, err)
			}
			unverify := `UPDATE product_stats SET verified = ? WHERE cod = ? AND v = ?`
			if _, err := tx.ExecContext(ctx, tx.Rebind(unverify), false, key.Code, key.Variant); err != nil {
				return fmt.Errorf("failed to unverify %s: %w", key, err)
			}
			return nil
		}

		deleted = true
		return deleteProduct(ctx, tx, key)
	})
	return deleted, err
}

func (s *Store) PurgeFlagged(ctx context.Context) (int, error) {
	var purged int
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var keys []struct {
			Code    int `db:"cod"`
			Variant int `db:"v"`
		}
		query := `
			SELECT p.cod, p.v
			FROM products p
			LEFT JOIN product_stats st ON st.cod = p.cod AND st.v = p.v
			WHERE p.purge_flag = ? AND (st.stock IS NULL OR st.stock <= 0)
			ORDER BY p.cod, p.v
		`
		if err := sqlx.SelectContext(ctx, tx, &keys, tx.Rebind(query), true); err != nil {
			return fmt.Errorf("failed to list flagged products: %w", err)
		}

		for _, k := range keys {
			key := domain.ProductKey{Code: k.Code, Variant: k.Variant}
			if err := deleteProduct(ctx, tx, key); err != nil {
				return err
			}
			log.Info().Int("cod", key.Code).Int("var", key.Variant).Msg("purged product")
		}
		purged = len(keys)
		return nil
	})
	return purged, err
}

func (s *Store) saveStats(ctx context.Context, tx *sqlx.Tx, key domain.ProductKey, stats domain.ProductStats) error {
	query := `
		INSERT INTO product_stats (
			cod, v, sold_history, bought_history, recent_daily_sales,
			stock, verified, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cod, v)
		DO UPDATE SET
			sold_history = excluded.sold_history,
			bought_history = excluded.bought_history,
			recent_daily_sales = excluded.recent_daily_sales,
			stock = excluded.stock,
			verified = excluded.verified,
			last_update = excluded.last_update
	`
	_, err := tx.ExecContext(ctx, tx.Rebind(query),
		key.Code, key.Variant, stats.SoldHistory, stats.BoughtHistory, stats.RecentDailySales,
		stats.Stock, stats.Verified, nullTime(stats.LastUpdate),
	)
	if err != nil {
		return fmt.Errorf("failed to save stats of %s: %w", key, err)
	}
	return nil
}

func deleteProduct(ctx context.Context, tx *sqlx.Tx, key domain.ProductKey) error {
	for _, table := range []string{"losses", "promotions", "product_stats", "products"} {
		query := `DELETE FROM ` + table + ` WHERE cod = ? AND v = ?`
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), key.Code, key.Variant); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", table, key, err)
		}
	}
	return nil
}
