package domain

import "time"

// OrderLine is a product to reorder
type OrderLine struct {
	Key         ProductKey `json:"key"`
	Description string     `json:"description"`
	Quantity    int        `json:"qty"`
	DiscountPct *float64   `json:"discount"`
	RuleID      int        `json:"rule"`
}

// ProductNote is a product listed in a diagnostic bucket with its reason
type ProductNote struct {
	Key         ProductKey `json:"key"`
	Description string     `json:"description"`
	Reason      string     `json:"reason,omitempty"`
}

// DecisionSet is the outcome of one restock run over a sector. Orders,
// NewProducts, Skipped and Zombies are disjoint.
type DecisionSet struct {
	Sector         string        `json:"sector"`
	Date           time.Time     `json:"date"`
	Coverage       float64       `json:"coverage"`
	Orders         []OrderLine   `json:"orders"`
	NewProducts    []ProductNote `json:"new_products"`
	Skipped        []ProductNote `json:"skipped_products"`
	Zombies        []ProductNote `json:"zombie_products"`
	LowSale        []ProductNote `json:"low_sale_products"`
	AnomalousStock []ProductNote `json:"anomalous_stock_products"`
	Errors         []ProductNote `json:"errors"`
}

// TotalPackages returns the number of packages across all orders
func (d DecisionSet) TotalPackages() int {
	total := 0
	for _, o := range d.Orders {
		total += o.Quantity
	}
	return total
}
