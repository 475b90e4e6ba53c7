package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/repository"
)

type lossKey struct {
	key      domain.ProductKey
	lossType domain.LossType
}

// Store is an in-memory TimeSeriesStore. It backs tests and dry runs.
type Store struct {
	mu         sync.RWMutex
	products   map[domain.ProductKey]domain.ProductVariant
	stats      map[domain.ProductKey]domain.ProductStats
	promotions map[domain.ProductKey]domain.SaleWindow
	losses     map[lossKey]domain.LossLedger
	blacklists map[string]domain.Blacklist
}

var _ repository.TimeSeriesStore = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		products:   make(map[domain.ProductKey]domain.ProductVariant),
		stats:      make(map[domain.ProductKey]domain.ProductStats),
		promotions: make(map[domain.ProductKey]domain.SaleWindow),
		losses:     make(map[lossKey]domain.LossLedger),
		blacklists: make(map[string]domain.Blacklist),
	}
}

// PutProduct stores a catalog entry without creating its stats row
func (s *Store) PutProduct(p domain.ProductVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.Key] = p
}

// PutStats replaces the stats of a product
func (s *Store) PutStats(key domain.ProductKey, stats domain.ProductStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[key] = copyStats(stats)
}

// PutLossLedger replaces a loss ledger
func (s *Store) PutLossLedger(ledger domain.LossLedger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.losses[lossKey{ledger.Key, ledger.Type}] = ledger
}

func (s *Store) GetStats(ctx context.Context, key domain.ProductKey) (*domain.ProductStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[key]
	if !ok {
		return nil, nil
	}
	out := copyStats(stats)
	return &out, nil
}

func (s *Store) GetProduct(ctx context.Context, key domain.ProductKey) (*domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[key]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", key, domain.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProductsBySector(ctx context.Context, sector string) ([]domain.SectorProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SectorProduct
	for key, p := range s.products {
		if p.Sector != sector {
			continue
		}
		row := domain.SectorProduct{ProductVariant: p}
		if stats, ok := s.stats[key]; ok {
			c := copyStats(stats)
			row.Stats = &c
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Key, out[j].Key)
	})
	return out, nil
}

func (s *Store) GetBlacklist(ctx context.Context, sector string) (domain.Blacklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := domain.NewBlacklist()
	for k := range s.blacklists[sector] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *Store) GetActivePromotions(ctx context.Context, today time.Time) (map[domain.ProductKey]domain.SaleWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.ProductKey]domain.SaleWindow)
	for k, w := range s.promotions {
		if w.ActiveOn(today) {
			out[k] = w
		}
	}
	return out, nil
}

func (s *Store) GetRecentlyEndedPromotions(ctx context.Context, today time.Time, windowDays int) (map[domain.ProductKey]domain.EndedPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.ProductKey]domain.EndedPromotion)
	for k, w := range s.promotions {
		since := domain.DaysBetween(w.End, today)
		if since > 0 && since <= windowDays {
			out[k] = w.Ended(today)
		}
	}
	return out, nil
}

func (s *Store) GetInternalUseLosses(ctx context.Context) ([]domain.LossLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LossLedger
	for k, l := range s.losses {
		if k.lossType == domain.LossInternal {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Key, out[j].Key)
	})
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.Key] = product
	if _, ok := s.stats[product.Key]; !ok {
		s.stats[product.Key] = domain.NewProductStats()
	}
	return nil
}

func (s *Store) UpsertPromotion(ctx context.Context, window domain.SaleWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[window.Key] = window
	return nil
}

func (s *Store) AddToBlacklist(ctx context.Context, sector string, key domain.ProductKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blacklists[sector] == nil {
		s.blacklists[sector] = domain.NewBlacklist()
	}
	s.blacklists[sector][key] = struct{}{}
	return nil
}

func (s *Store) UpdateStats(ctx context.Context, key domain.ProductKey, obs domain.Observation) (domain.ProductStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[key]
	if !ok {
		stats = domain.NewProductStats()
	}
	next := stats.ApplyObservation(obs)
	s.stats[key] = next
	return copyStats(next), nil
}

func (s *Store) RegisterLoss(ctx context.Context, key domain.ProductKey, lossType domain.LossType, qty int, date time.Time) error {
	if !lossType.Valid() {
		return fmt.Errorf("unknown loss type %q", lossType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[key]
	if !ok {
		return fmt.Errorf("stats of %s: %w", key, domain.ErrNotFound)
	}
	lk := lossKey{key, lossType}
	ledger, ok := s.losses[lk]
	if !ok {
		ledger = domain.LossLedger{Key: key, Type: lossType}
	}
	s.losses[lk] = ledger.Record(qty, date)
	s.stats[key] = stats.WithStockDelta(-qty)
	return nil
}

func (s *Store) VerifyStock(ctx context.Context, key domain.ProductKey, stock int, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[key]
	if !ok {
		stats = domain.NewProductStats()
	}
	s.stats[key] = stats.WithVerifiedStock(stock, date)
	return nil
}

func (s *Store) FlagForPurge(ctx context.Context, key domain.ProductKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[key]
	if !ok {
		return false, fmt.Errorf("product %s: %w", key, domain.ErrNotFound)
	}
	stats := s.stats[key]
	if stats.Stock != nil && *stats.Stock > 0 {
		p.PurgeFlag = true
		s.products[key] = p
		stats.Verified = false
		s.stats[key] = stats
		return false, nil
	}
	s.deleteLocked(key)
	return true, nil
}

func (s *Store) PurgeFlagged(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, p := range s.products {
		if !p.PurgeFlag {
			continue
		}
		stats := s.stats[key]
		if stats.Stock == nil || *stats.Stock <= 0 {
			s.deleteLocked(key)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) deleteLocked(key domain.ProductKey) {
	delete(s.products, key)
	delete(s.stats, key)
	delete(s.promotions, key)
	for lk := range s.losses {
		if lk.key == key {
			delete(s.losses, lk)
		}
	}
}

func copyStats(s domain.ProductStats) domain.ProductStats {
	if s.Stock != nil {
		v := *s.Stock
		s.Stock = &v
	}
	return s
}

func lessKey(a, b domain.ProductKey) bool {
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Variant < b.Variant
}
