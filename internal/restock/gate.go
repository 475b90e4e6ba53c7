package restock

import (
	"strings"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// GateKind is the verdict of the gating stage
type GateKind int

const (
	// GateProceed lets the product through to forecasting
	GateProceed GateKind = iota
	// GateExclude drops the product from every output
	GateExclude
	// GateSkip lists the product as skipped with a reason
	GateSkip
	// GateZombie lists the product as discontinued
	GateZombie
	// GateNew lists the product as never seen before
	GateNew
)

func (k GateKind) String() string {
	switch k {
	case GateProceed:
		return "proceed"
	case GateExclude:
		return "exclude"
	case GateSkip:
		return "skip"
	case GateZombie:
		return "zombie"
	case GateNew:
		return "new"
	}
	return "unknown"
}

// Gate is the tagged result of gating a product
type Gate struct {
	Kind      GateKind
	Reason    string
	Anomalous bool // verified with negative stock
}

const (
	reasonBlacklisted      = "blacklisted"
	reasonPurgeFlagged     = "flagged for purge"
	reasonUnverifiedNoSale = "not verified and not available from vendor"
	reasonZombie           = "finished and not restockable"
	reasonNoStock          = "no stock recorded"
	reasonNewProduct       = "never been in system"
	reasonNoHistoryNoSale  = "not available for restocking and no sales history"
	reasonNotVerified      = "not verified"
)

// Gater classifies products before any numbers are computed. Rules run in a
// fixed order and the first match is terminal.
type Gater struct {
	perishable map[string]bool
}

// NewGater creates a gater treating the given sectors as perishables
func NewGater(perishableSectors []string) *Gater {
	g := &Gater{perishable: make(map[string]bool, len(perishableSectors))}
	for _, s := range perishableSectors {
		if s = strings.TrimSpace(s); s != "" {
			g.perishable[strings.ToLower(s)] = true
		}
	}
	return g
}

// Perishable reports whether a sector holds perishables
func (g *Gater) Perishable(sector string) bool {
	return g.perishable[strings.ToLower(strings.TrimSpace(sector))]
}

// Evaluate gates one product
func (g *Gater) Evaluate(p domain.SectorProduct, blacklist domain.Blacklist) Gate {
	if blacklist.Contains(p.Key) {
		return Gate{Kind: GateExclude, Reason: reasonBlacklisted}
	}
	if p.PurgeFlag {
		return Gate{Kind: GateExclude, Reason: reasonPurgeFlagged}
	}

	var (
		verified  bool
		stock     *int
		available = p.Availability.Available()
		perish    = g.Perishable(p.Sector)
	)
	if p.Stats != nil {
		verified = p.Stats.Verified
		stock = p.Stats.Stock
	}

	if !verified && !available {
		return Gate{Kind: GateSkip, Reason: reasonUnverifiedNoSale}
	}
	if verified && stock != nil && *stock == 0 && (!available || perish) {
		return Gate{Kind: GateZombie, Reason: reasonZombie}
	}
	if stock == nil {
		return Gate{Kind: GateSkip, Reason: reasonNoStock}
	}

	anomalous := verified && *stock < 0

	if !p.Stats.HasHistory() {
		if !verified && (available || perish) {
			return Gate{Kind: GateNew, Reason: reasonNewProduct, Anomalous: anomalous}
		}
		if !available {
			return Gate{Kind: GateSkip, Reason: reasonNoHistoryNoSale, Anomalous: anomalous}
		}
	}

	if !verified {
		return Gate{Kind: GateSkip, Reason: reasonNotVerified, Anomalous: anomalous}
	}

	return Gate{Kind: GateProceed, Anomalous: anomalous}
}
