// Package decision maps an Assessment to a trade/no-trade decision.
package decision

// Criterion names, in evaluation order.
const (
	CriterionRisk       = "risk_score"
	CriterionProfit     = "profit_potential"
	CriterionProvenance = "verified_or_audited"
	CriterionLiquidity  = "min_liquidity"
)

// Thresholds configures the gate.
type Thresholds struct {
	RiskRejectThreshold       float64 // reject when risk score is above
	MinProfitPotentialPercent float64 // reject when profit potential is below
	MinLiquidityUSD           float64 // reject when liquidity is below
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Decision is the gate output with its checklist.
type Decision struct {
	Trade  bool
	Reason string // first failed criterion; empty when Trade
	Checks []CriterionResult
}

// Failed returns the criteria that did not pass.
func (d *Decision) Failed() []CriterionResult {
	var out []CriterionResult
	for _, c := range d.Checks {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}
