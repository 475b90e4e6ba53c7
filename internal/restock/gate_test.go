package restock

import (
	"testing"

	"github.com/andresuchdata/autorestock/internal/domain"
)

func TestGaterEvaluate(t *testing.T) {
	gater := NewGater([]string{"Frutta"})
	history := domain.NewMonthlyHistory(10, 10, 10, 10)

	stats := func(stock *int, verified bool, sold domain.MonthlyHistory) *domain.ProductStats {
		return &domain.ProductStats{SoldHistory: sold, Stock: stock, Verified: verified}
	}
	variant := func(sector string, availability domain.Availability, purge bool) domain.ProductVariant {
		return domain.ProductVariant{
			Key:          key(1),
			PackageSize:  6,
			Sector:       sector,
			Availability: availability,
			PurgeFlag:    purge,
		}
	}

	tests := []struct {
		name      string
		product   domain.SectorProduct
		blacklist domain.Blacklist
		kind      GateKind
		reason    string
		anomalous bool
	}{
		{
			name:      "blacklisted before anything else",
			product:   domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, true), Stats: stats(intPtr(5), true, history)},
			blacklist: domain.NewBlacklist(key(1)),
			kind:      GateExclude,
			reason:    reasonBlacklisted,
		},
		{
			name:    "purge flagged",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, true), Stats: stats(intPtr(5), true, history)},
			kind:    GateExclude,
			reason:  reasonPurgeFlagged,
		},
		{
			name:    "unverified and unavailable",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityNo, false), Stats: stats(intPtr(5), false, history)},
			kind:    GateSkip,
			reason:  reasonUnverifiedNoSale,
		},
		{
			name:    "finished and unavailable",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityNo, false), Stats: stats(intPtr(0), true, history)},
			kind:    GateZombie,
			reason:  reasonZombie,
		},
		{
			name:    "finished perishable",
			product: domain.SectorProduct{ProductVariant: variant("frutta", domain.AvailabilityYes, false), Stats: stats(intPtr(0), true, history)},
			kind:    GateZombie,
			reason:  reasonZombie,
		},
		{
			name:    "finished but restockable",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, false), Stats: stats(intPtr(0), true, history)},
			kind:    GateProceed,
		},
		{
			name:    "no stats row",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, false)},
			kind:    GateSkip,
			reason:  reasonNoStock,
		},
		{
			name:    "new product",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, false), Stats: stats(intPtr(0), false, domain.MonthlyHistory{})},
			kind:    GateNew,
			reason:  reasonNewProduct,
		},
		{
			name:      "verified without history and unavailable",
			product:   domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityNo, false), Stats: stats(intPtr(-2), true, domain.MonthlyHistory{})},
			kind:      GateSkip,
			reason:    reasonNoHistoryNoSale,
			anomalous: true,
		},
		{
			name:    "not verified",
			product: domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, false), Stats: stats(intPtr(5), false, history)},
			kind:    GateSkip,
			reason:  reasonNotVerified,
		},
		{
			name:      "negative verified stock proceeds",
			product:   domain.SectorProduct{ProductVariant: variant("Drogheria", domain.AvailabilityYes, false), Stats: stats(intPtr(-4), true, history)},
			kind:      GateProceed,
			anomalous: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gater.Evaluate(tt.product, tt.blacklist)
			if got.Kind != tt.kind || got.Reason != tt.reason || got.Anomalous != tt.anomalous {
				t.Errorf("Evaluate() = {%s %q %v}, want {%s %q %v}",
					got.Kind, got.Reason, got.Anomalous, tt.kind, tt.reason, tt.anomalous)
			}
		})
	}
}

func TestRunStatsSuccessRate(t *testing.T) {
	if got := (&RunStats{}).SuccessRate(); got != 0 {
		t.Errorf("empty SuccessRate() = %v, want 0", got)
	}
	if got := (&RunStats{Success: 3, Fail: 1}).SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", got)
	}
}
