package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when a product or run does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidPackageSize is returned when a package size is not positive
	ErrInvalidPackageSize = errors.New("package size must be positive")
)

// Availability is the vendor availability flag of a product
type Availability string

const (
	AvailabilityYes Availability = "Si"
	AvailabilityNo  Availability = "No"
)

// Available reports whether the vendor still sells the product
func (a Availability) Available() bool {
	return a == AvailabilityYes
}

// ProductKey identifies a product variant
type ProductKey struct {
	Code    int `json:"cod" db:"cod"`
	Variant int `json:"var" db:"v"`
}

func (k ProductKey) String() string {
	return fmt.Sprintf("%d.%d", k.Code, k.Variant)
}

// ProductVariant is a catalog entry of a storage
type ProductVariant struct {
	Key                  ProductKey   `json:"key"`
	Description          string       `json:"description" db:"descrizione"`
	PackageSize          int          `json:"package_size" db:"pz_x_collo"`
	PackageMultiplier    int          `json:"package_multiplier" db:"rapp"`
	Sector               string       `json:"sector" db:"settore"`
	Availability         Availability `json:"availability" db:"disponibilita"`
	PurgeFlag            bool         `json:"purge_flag" db:"purge_flag"`
	MinimumStockOverride *int         `json:"minimum_stock_override,omitempty" db:"minimum_stock_override"`
}

// OrderPackageSize returns the package size multiplied by the package multiplier
func (p ProductVariant) OrderPackageSize() int {
	mult := p.PackageMultiplier
	if mult < 1 {
		mult = 1
	}
	return p.PackageSize * mult
}

// ProductStats holds the time series of a product variant
type ProductStats struct {
	SoldHistory      MonthlyHistory `json:"sold_history"`
	BoughtHistory    MonthlyHistory `json:"bought_history"`
	RecentDailySales SalesLedger    `json:"recent_daily_sales"`
	Stock            *int           `json:"stock"`
	Verified         bool           `json:"verified"`
	LastUpdate       time.Time      `json:"last_update"`
}

// NewProductStats returns the stats of a product seen for the first time
func NewProductStats() ProductStats {
	zero := 0
	return ProductStats{Stock: &zero}
}

// HasHistory reports whether any sale or purchase was ever recorded
func (s ProductStats) HasHistory() bool {
	return s.SoldHistory.Len() > 0 || s.BoughtHistory.Len() > 0
}

// SectorProduct is a product row joined with its stats, as returned by
// TimeSeriesStore.GetProductsBySector. Stats is nil when the product has no
// stats row.
type SectorProduct struct {
	ProductVariant
	Stats *ProductStats `json:"stats"`
}

// Blacklist is the set of product variants excluded from ordering
type Blacklist map[ProductKey]struct{}

// NewBlacklist builds a blacklist from the given keys
func NewBlacklist(keys ...ProductKey) Blacklist {
	bl := make(Blacklist, len(keys))
	for _, k := range keys {
		bl[k] = struct{}{}
	}
	return bl
}

// Contains reports whether key is blacklisted
func (b Blacklist) Contains(key ProductKey) bool {
	_, ok := b[key]
	return ok
}
