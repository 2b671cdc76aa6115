package decision

import (
	"fmt"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
)

// Gate evaluates the trade criteria. It holds no mutable state.
type Gate struct {
	t Thresholds
}

// NewGate creates a Gate.
func NewGate(t Thresholds) *Gate {
	return &Gate{t: t}
}

// ThresholdsFromConfig maps the decision section onto Thresholds.
func ThresholdsFromConfig(d config.Decision) Thresholds {
	return Thresholds{
		RiskRejectThreshold:       d.RiskRejectThreshold,
		MinProfitPotentialPercent: d.MinProfitPotentialPercent,
		MinLiquidityUSD:           d.MinLiquidityUSD,
	}
}

// Decide evaluates every criterion and trades only if all pass.
// The same Assessment always yields the same Decision.
func (g *Gate) Decide(a *domain.Assessment) Decision {
	checks := []CriterionResult{
		{
			Name:      CriterionRisk,
			Threshold: fmt.Sprintf("<= %.0f", g.t.RiskRejectThreshold),
			Actual:    fmt.Sprintf("%.1f", a.RiskScore),
			Pass:      a.RiskScore <= g.t.RiskRejectThreshold,
		},
		{
			Name:      CriterionProfit,
			Threshold: fmt.Sprintf(">= %.0f%%", g.t.MinProfitPotentialPercent),
			Actual:    fmt.Sprintf("%.1f%%", a.ProfitPotentialPercent),
			Pass:      a.ProfitPotentialPercent >= g.t.MinProfitPotentialPercent,
		},
		{
			Name:      CriterionProvenance,
			Threshold: "verified OR audited",
			Actual:    fmt.Sprintf("verified=%t audited=%t", a.Contract.Verified, a.Contract.Audited),
			Pass:      a.Contract.Verified || a.Contract.Audited,
		},
		{
			Name:      CriterionLiquidity,
			Threshold: fmt.Sprintf(">= $%.0f", g.t.MinLiquidityUSD),
			Actual:    fmt.Sprintf("$%.0f (%s)", a.Liquidity.AmountUSD, a.Liquidity.Tier),
			Pass:      a.Liquidity.AmountUSD >= g.t.MinLiquidityUSD,
		},
	}

	d := Decision{Trade: true, Checks: checks}
	for _, c := range checks {
		if !c.Pass {
			d.Trade = false
			d.Reason = c.Name
			break
		}
	}
	return d
}
