package decider

import (
	"fmt"
	"math"

	"github.com/andresuchdata/autorestock/internal/domain"
)

// CategoryN is the reference restock policy. Rules are evaluated in order
// and the first match wins.
type CategoryN struct{}

// NewCategoryN creates the category N decider
func NewCategoryN() *CategoryN {
	return &CategoryN{}
}

func (c *CategoryN) Category() string { return "N" }

// Decide computes the number of packages to order. Values are rounded half
// to even.
func (c *CategoryN) Decide(in Input) (Decision, error) {
	if in.PackageSize <= 0 {
		return Decision{}, fmt.Errorf("category N: %w (got %d)", domain.ErrInvalidPackageSize, in.PackageSize)
	}

	base := in.MinimumStockBase
	if base <= 0 {
		base = DefaultMinimumStockBase
	}

	// 1. Required stock in whole units
	required := int(math.RoundToEven(in.RequiredStock))

	// 2. Safety floor from last year's rate or the configured base
	minimum := math.Max(in.BaselineRate, float64(base))

	// 3. Demand velocity
	if in.DailyRate >= 1 {
		minimum += math.RoundToEven(in.DailyRate) + math.Floor(float64(required)*0.1)
	} else if in.DailyRate < 0.6 {
		minimum--
		if in.DailyRate < 0.2 {
			minimum--
		}
	}

	// 4. Deviation scaling. The <= -40 branch is shadowed by <= -20 and
	// never matches; the order is part of the policy.
	switch {
	case in.DeviationPct >= 40:
		minimum = math.Floor(minimum * 1.2)
	case in.DeviationPct >= 20:
		minimum = math.Floor(minimum * 1.1)
	case in.DeviationPct <= -20:
		minimum = math.Ceil(minimum * 0.9)
	case in.DeviationPct <= -40:
		minimum = math.Ceil(minimum * 0.7)
	}

	// 5. Safety floor in whole units
	minStock := int(math.RoundToEven(minimum))

	decision := Decision{
		RuleID:        RuleNone,
		Outcome:       OutcomeFail,
		RequiredStock: required,
		MinimumStock:  minStock,
	}

	// 6. Raw packages
	orderRaw := float64(required+minStock-in.CurrentStock) / float64(in.PackageSize)
	decision.OrderRaw = orderRaw

	// 7. Asymmetric rounding: round down only within the tolerance of one
	// day of demand
	if orderRaw >= 0 {
		tolerance := in.DailyRate / float64(in.PackageSize)
		var order float64
		if math.Mod(orderRaw, 1) <= tolerance {
			order = math.Floor(orderRaw)
		} else {
			order = math.Ceil(orderRaw)
		}
		if order >= 1 {
			qty := int(order)
			decision.Quantity = &qty
			decision.RuleID = RuleForecast
			decision.Outcome = OutcomeSuccess
			return decision, nil
		}
	}

	// 8. Below the safety floor a single package is always ordered
	leftover := in.CurrentStock - required
	if leftover <= minStock {
		qty := 1
		decision.Quantity = &qty
		decision.RuleID = RuleSafetyMin
		decision.Outcome = OutcomeSuccess
		return decision, nil
	}

	// 9. Nothing to order
	return decision, nil
}
