package decider

// Outcome is the result class of a decision
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFail    Outcome = "fail"
)

// Rule ids reported with every decision
const (
	RuleNone      = 0 // no order
	RuleForecast  = 1 // forecast-driven order
	RuleSafetyMin = 2 // single package because stock fell below the safety floor
)

// DefaultMinimumStockBase is the safety floor used when neither the storage
// nor the product configures one
const DefaultMinimumStockBase = 4

// Input is everything a decider needs for one product
type Input struct {
	PackageSize      int
	DeviationPct     float64
	DailyRate        float64
	BaselineRate     float64
	RequiredStock    float64
	CurrentStock     int
	DiscountPct      *float64
	MinimumStockBase int
	Trend            int
}

// Decision is the verdict of a decider. Quantity is nil when nothing is
// ordered.
type Decision struct {
	Quantity      *int
	RuleID        int
	Outcome       Outcome
	RequiredStock int
	MinimumStock  int
	OrderRaw      float64
}

// Ordered reports whether the decision orders at least one package
func (d Decision) Ordered() bool {
	return d.Quantity != nil
}

// QuantityDecider turns a corrected demand into a number of packages
type QuantityDecider interface {
	Category() string
	Decide(in Input) (Decision, error)
}
